// File: pool/slab.go
// Package pool implements slab allocation of chunk memory.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A slab is one contiguous region carved into fixed-size chunks by the arena.
// Off-heap slabs are anonymous private mappings so the GC never scans chunk
// payloads; on-heap slabs are plain Go slices.

package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/chunkmux/api"
)

// Slab is a contiguous chunk backing region.
type Slab struct {
	data    []byte
	offHeap bool
	alloc   *Allocator
}

// Bytes returns the whole region.
func (s *Slab) Bytes() []byte { return s.data }

// Len returns the region size in bytes.
func (s *Slab) Len() int { return len(s.data) }

// OffHeap reports whether the region lives outside the Go heap.
func (s *Slab) OffHeap() bool { return s.offHeap }

// Release returns the region to the OS (off-heap) or drops it (on-heap).
// Releasing twice is a no-op.
func (s *Slab) Release() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	s.alloc.totalFree.Add(int64(len(data)))
	s.alloc.liveSlabs.Add(-1)
	if !s.offHeap {
		return nil
	}
	return unmapRegion(data)
}

// Allocator hands out slabs and keeps byte accounting.
type Allocator struct {
	offHeap bool

	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	liveSlabs  atomic.Int64
}

// SlabStats aggregates slab allocation/release stats.
type SlabStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	LiveSlabs  int64
	OffHeap    bool
}

// NewAllocator creates an allocator; offHeap selects anonymous mappings.
func NewAllocator(offHeap bool) *Allocator {
	return &Allocator{offHeap: offHeap}
}

// Alloc maps a zeroed slab of exactly size bytes.
func (a *Allocator) Alloc(size int) (*Slab, error) {
	if size <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "slab size must be positive").
			WithContext("size", size)
	}
	var (
		data []byte
		err  error
	)
	if a.offHeap {
		data, err = mapRegion(size)
		if err != nil {
			return nil, fmt.Errorf("map %d byte slab: %w", size, err)
		}
	} else {
		data = make([]byte, size)
	}
	a.totalAlloc.Add(int64(size))
	a.liveSlabs.Add(1)
	return &Slab{data: data, offHeap: a.offHeap, alloc: a}, nil
}

// OffHeap reports the allocation mode.
func (a *Allocator) OffHeap() bool { return a.offHeap }

// Stats exposes resource/accounting metrics for observability.
func (a *Allocator) Stats() SlabStats {
	totalAlloc := a.totalAlloc.Load()
	totalFree := a.totalFree.Load()
	return SlabStats{
		TotalAlloc: totalAlloc,
		TotalFree:  totalFree,
		InUse:      totalAlloc - totalFree,
		LiveSlabs:  a.liveSlabs.Load(),
		OffHeap:    a.offHeap,
	}
}
