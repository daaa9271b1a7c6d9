// File: core/buffer/transfer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chunk ownership transfer between buffers of one arena. Both operations run
// under the arena lock, so no other buffer can observe a half-moved chain.

package buffer

import (
	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/chunk"
)

// DonateNodes moves count free chunks from b to target. Content is untouched
// on both sides; b's capacity shrinks and target's grows by count.
func (b *Buffer) DonateNodes(target *Buffer, count int) error {
	if err := b.checkPeer(target, count); err != nil {
		return err
	}
	b.arena.Lock()
	defer b.arena.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if count > b.freeLocked() {
		return api.NewError(api.ErrCodeCapacityExceeded, "not enough free chunks to donate").
			WithContext("count", count).
			WithContext("free", b.freeLocked())
	}
	if target.nodeCap+count > chunk.MaxChunks {
		return api.NewError(api.ErrCodeCapacityExceeded, "target would exceed chunk limit").
			WithContext("target_cap", target.nodeCap).
			WithContext("count", count)
	}
	first, last := b.takeFree(count)
	target.insertFree(first, last, count)
	return nil
}

// SwapNodes exchanges count free chunks of b for the count oldest full chunks
// of target. Both capacities stay the same; target loses the head data, which
// is appended to b. count must cover whole datagrams.
func (b *Buffer) SwapNodes(target *Buffer, count int) error {
	if err := b.checkPeer(target, count); err != nil {
		return err
	}
	b.arena.Lock()
	defer b.arena.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if count > target.nodeCount {
		return api.NewError(api.ErrCodeCapacityExceeded, "target holds fewer full chunks").
			WithContext("count", count).
			WithContext("target_count", target.nodeCount)
	}
	if count > b.freeLocked() {
		return api.NewError(api.ErrCodeCapacityExceeded, "not enough free chunks to swap").
			WithContext("count", count).
			WithContext("free", b.freeLocked())
	}
	if run, _ := target.headRunLocked(count); run != count {
		return api.NewError(api.ErrCodeMalformedFraming, "swap would split a datagram").
			WithContext("count", count).
			WithContext("whole", run)
	}
	emptyFirst, emptyLast := b.takeFree(count)
	fullFirst, fullLast := target.takeFull(count)
	target.insertFree(emptyFirst, emptyLast, count)
	b.appendFull(fullFirst, fullLast, count)
	return nil
}

func (b *Buffer) checkPeer(target *Buffer, count int) error {
	switch {
	case target == nil || target == b:
		return api.NewError(api.ErrCodeInvalidArgument, "transfer target must be another buffer")
	case target.arena != b.arena:
		return api.ErrForeignArena
	case count <= 0:
		return api.NewError(api.ErrCodeInvalidArgument, "transfer count must be positive").
			WithContext("count", count)
	}
	return nil
}

// takeFree unlinks the count free chunks following end and returns them as
// an open chain.
func (b *Buffer) takeFree(count int) (first, last chunk.Handle) {
	a := b.arena
	first = a.Next(b.end)
	last = a.Walk(first, count-1)
	after := a.Next(last)
	if count == b.nodeCap {
		b.start, b.end = chunk.NilHandle, chunk.NilHandle
	} else {
		a.SetNext(b.end, after)
		if count == b.freeLocked() {
			// start was the last free chunk and has just left the ring
			b.start = b.end
		}
	}
	b.nodeCap -= count
	a.SetNext(last, chunk.NilHandle)
	return first, last
}

// takeFull unlinks the count oldest full chunks and returns them as an open chain.
func (b *Buffer) takeFull(count int) (first, last chunk.Handle) {
	a := b.arena
	first = a.Next(b.start)
	last = a.Walk(first, count-1)
	after := a.Next(last)
	if count == b.nodeCap {
		b.start, b.end = chunk.NilHandle, chunk.NilHandle
	} else {
		a.SetNext(b.start, after)
		if count == b.nodeCount {
			b.end = b.start
		}
	}
	b.nodeCap -= count
	b.nodeCount -= count
	a.SetNext(last, chunk.NilHandle)
	return first, last
}

// insertFree splices an open chain of empty chunks into the free region.
func (b *Buffer) insertFree(first, last chunk.Handle, count int) {
	a := b.arena
	if b.nodeCap == 0 {
		a.SetNext(last, first)
		b.start, b.end = last, last
	} else {
		wasFull := b.nodeCount == b.nodeCap
		after := a.Next(b.end)
		a.SetNext(b.end, first)
		a.SetNext(last, after)
		if wasFull {
			b.start = last
		}
	}
	b.nodeCap += count
}

// appendFull splices an open chain of written chunks after end.
func (b *Buffer) appendFull(first, last chunk.Handle, count int) {
	a := b.arena
	if b.nodeCap == 0 {
		a.SetNext(last, first)
		b.start, b.end = last, last
	} else {
		wasFull := b.nodeCount == b.nodeCap
		after := a.Next(b.end)
		a.SetNext(b.end, first)
		a.SetNext(last, after)
		b.end = last
		if wasFull {
			b.start = last
		}
	}
	b.nodeCap += count
	b.nodeCount += count
}

// Check walks the ring and verifies the bookkeeping against the chunks.
func (b *Buffer) Check() error {
	b.arena.Lock()
	defer b.arena.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	a := b.arena
	if b.nodeCap == 0 {
		if b.start != chunk.NilHandle || b.end != chunk.NilHandle || b.nodeCount != 0 {
			return api.NewError(api.ErrCodeInternal, "chunk-less buffer has ring pointers")
		}
		return nil
	}
	if b.nodeCount < 0 || b.nodeCount > b.nodeCap {
		return api.NewError(api.ErrCodeInternal, "node count out of range").
			WithContext("count", b.nodeCount).
			WithContext("cap", b.nodeCap)
	}
	h := b.start
	for i := 0; i < b.nodeCap; i++ {
		h = a.Next(h)
		if h == chunk.NilHandle {
			return api.NewError(api.ErrCodeInternal, "ring broken").WithContext("at", i)
		}
		c := a.Chunk(h)
		full := i < b.nodeCount
		if full == c.Empty() {
			return api.NewError(api.ErrCodeInternal, "chunk state disagrees with ring position").
				WithContext("at", i).
				WithContext("full", full)
		}
		if i == b.nodeCount-1 && h != b.end {
			return api.NewError(api.ErrCodeInternal, "end does not close the full region").
				WithContext("at", i)
		}
	}
	if h != b.start {
		return api.NewError(api.ErrCodeInternal, "ring length differs from node capacity").
			WithContext("cap", b.nodeCap)
	}
	if b.nodeCount == 0 && b.end != b.start {
		return api.NewError(api.ErrCodeInternal, "empty buffer with end apart from start")
	}
	return nil
}
