// Unit tests for the buffer pool
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestBufferPool(t *testing.T) {
	b := GetBuffer()
	if b.Len() != 0 {
		t.Fatalf("new buffer should be empty, got %d bytes", b.Len())
	}

	b.WriteString("axis")
	b.WriteByte('/')
	b.Write([]byte("3"))
	if got := string(b.Bytes()); got != "axis/3" {
		t.Errorf("expected axis/3, got %q", got)
	}
	PutBuffer(b)

	b2 := GetBuffer()
	if b2.Len() != 0 {
		t.Errorf("pooled buffer should be empty, got %d bytes", b2.Len())
	}
	PutBuffer(b2)
}

func TestBufferJSON(t *testing.T) {
	b := GetBuffer()
	defer PutBuffer(b)
	if err := json.NewEncoder(b).Encode(map[string]float64{"cmd_pos": 12.5}); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "{\"cmd_pos\":12.5}\n" {
		t.Errorf("unexpected encoding %q", got)
	}
	b.Reset()
	if b.Len() != 0 {
		t.Error("Reset should empty the buffer")
	}
}

func TestOversizedBufferDropped(t *testing.T) {
	b := GetBuffer()
	b.Write(make([]byte, maxPooledCap+1))
	PutBuffer(b)
	PutBuffer(nil)

	for i := 0; i < 10; i++ {
		if c := cap(GetBuffer().Bytes()); c > maxPooledCap {
			t.Fatalf("oversized buffer came back from the pool (cap %d)", c)
		}
	}
}

func TestBufferPoolConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := GetBuffer()
				b.WriteByte(byte(n))
				if b.Len() != 1 {
					t.Errorf("buffer shared between goroutines: len %d", b.Len())
				}
				PutBuffer(b)
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkBufferPool(b *testing.B) {
	v := map[string]float64{"cmd_pos": 1, "act_pos": 1}
	for i := 0; i < b.N; i++ {
		buf := GetBuffer()
		json.NewEncoder(buf).Encode(v)
		PutBuffer(buf)
	}
}
