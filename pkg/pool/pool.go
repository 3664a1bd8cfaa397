// Encoding buffer pool
//
// Telemetry encodes every response and every published snapshot to JSON.
// The buffers are reused across calls:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//	json.NewEncoder(buf).Encode(v)
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// Buffers that grew beyond this are dropped instead of pooled
const maxPooledCap = 64 * 1024

// Buffer is an append-only byte buffer implementing io.Writer
type Buffer struct {
	b []byte
}

var bufferPool = sync.Pool{
	New: func() any {
		return &Buffer{b: make([]byte, 0, 1024)}
	},
}

// GetBuffer returns an empty buffer
func GetBuffer() *Buffer {
	return bufferPool.Get().(*Buffer)
}

// PutBuffer returns b to the pool. b must not be used afterwards.
func PutBuffer(b *Buffer) {
	if b == nil || cap(b.b) > maxPooledCap {
		return
	}
	b.b = b.b[:0]
	bufferPool.Put(b)
}

// Bytes returns the contents, valid until the next write or PutBuffer
func (b *Buffer) Bytes() []byte {
	return b.b
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	b.b = append(b.b, c)
	return nil
}

func (b *Buffer) WriteString(s string) (int, error) {
	b.b = append(b.b, s...)
	return len(s), nil
}

func (b *Buffer) Len() int {
	return len(b.b)
}

func (b *Buffer) Reset() {
	b.b = b.b[:0]
}
