// Process image for digital and word I/O
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package iomem

import (
	"encoding/binary"
	"sync"

	"nexmotion-go/pkg/errors"
)

// Region is a byte-addressed I/O area. Multi-byte values are little endian.
type Region struct {
	mu   sync.RWMutex
	name string
	data []byte
}

// NewRegion allocates a zeroed region
func NewRegion(name string, size int) *Region {
	return &Region{name: name, data: make([]byte, size)}
}

// Size returns the region size in bytes
func (r *Region) Size() int {
	return len(r.data)
}

func (r *Region) check(offset, n int) error {
	if offset < 0 || n < 0 || n > len(r.data) || offset > len(r.data)-n {
		return errors.Newf(errors.AccessAreaInvalid,
			"%s access of %d bytes at %d outside %d bytes", r.name, n, offset, len(r.data))
	}
	return nil
}

// Read copies len(dst) bytes starting at offset
func (r *Region) Read(offset int, dst []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, r.data[offset:])
	return nil
}

// Write copies src into the region at offset
func (r *Region) Write(offset int, src []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(offset, len(src)); err != nil {
		return err
	}
	copy(r.data[offset:], src)
	return nil
}

// ReadBit reads bit (0..7) of the byte at offset
func (r *Region) ReadBit(offset, bit int) (bool, error) {
	if bit < 0 || bit > 7 {
		return false, errors.InvalidValue("bit %d out of range", bit)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset, 1); err != nil {
		return false, err
	}
	return r.data[offset]&(1<<uint(bit)) != 0, nil
}

// WriteBit sets or clears one bit
func (r *Region) WriteBit(offset, bit int, on bool) error {
	if bit < 0 || bit > 7 {
		return errors.InvalidValue("bit %d out of range", bit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(offset, 1); err != nil {
		return err
	}
	if on {
		r.data[offset] |= 1 << uint(bit)
	} else {
		r.data[offset] &^= 1 << uint(bit)
	}
	return nil
}

func (r *Region) ReadI8(offset int) (int8, error) {
	var b [1]byte
	err := r.Read(offset, b[:])
	return int8(b[0]), err
}

func (r *Region) ReadI16(offset int) (int16, error) {
	var b [2]byte
	err := r.Read(offset, b[:])
	return int16(binary.LittleEndian.Uint16(b[:])), err
}

func (r *Region) ReadI32(offset int) (int32, error) {
	var b [4]byte
	err := r.Read(offset, b[:])
	return int32(binary.LittleEndian.Uint32(b[:])), err
}

func (r *Region) WriteI8(offset int, v int8) error {
	return r.Write(offset, []byte{byte(v)})
}

func (r *Region) WriteI16(offset int, v int16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	return r.Write(offset, b[:])
}

func (r *Region) WriteI32(offset int, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return r.Write(offset, b[:])
}

// Snapshot returns a copy of the whole region
func (r *Region) Snapshot() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.data...)
}

// Image pairs the input and output regions of a device
type Image struct {
	In  *Region
	Out *Region
}

// NewImage allocates input and output regions
func NewImage(inSize, outSize int) *Image {
	return &Image{In: NewRegion("input", inSize), Out: NewRegion("output", outSize)}
}

// Loopback copies outputs onto the overlapping input bytes
func (im *Image) Loopback() {
	out := im.Out.Snapshot()
	n := len(out)
	if s := im.In.Size(); s < n {
		n = s
	}
	im.In.Write(0, out[:n])
}
