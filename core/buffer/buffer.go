// File: core/buffer/buffer.go
// Package buffer implements a datagram-framed virtual byte stream over a ring
// of arena chunks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring layout: start is the chunk before the first unread chunk, end is the
// last written chunk. The nodeCount chunks after start hold data; the chunks
// after end, up to and including start, are free. start == end both when the
// buffer is empty and when it is full; nodeCount tells the two apart.
//
// Every chunk costs its full capacity in byte accounting, so byte counters are
// derived from chunk counters.

package buffer

import (
	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/chunk"
)

// Header describes the datagram at the head of a buffer.
type Header struct {
	Length int
	Chunks int
	Dest   uint16
	Seq    uint32
	Kind   api.Kind
}

// Buffer is a FIFO of datagrams stored in chunks owned by one arena.
type Buffer struct {
	arena     *chunk.Arena
	start     chunk.Handle
	end       chunk.Handle
	nodeCap   int
	nodeCount int
	seq       uint32
	dest      uint16
	kind      api.Kind
}

// New creates an empty buffer without chunks. It grows only by donation or AllocateNodes.
func New(arena *chunk.Arena) *Buffer {
	return &Buffer{
		arena: arena,
		start: chunk.NilHandle,
		end:   chunk.NilHandle,
	}
}

// Arena returns the arena the buffer draws chunks from.
func (b *Buffer) Arena() *chunk.Arena { return b.arena }

// SetMetadata sets the destination and kind stamped on subsequently written chunks.
func (b *Buffer) SetMetadata(dest uint16, kind api.Kind) {
	b.arena.Lock()
	defer b.arena.Unlock()
	b.dest = dest
	b.kind = kind
}

// ChunkSize returns the uniform chunk capacity.
func (b *Buffer) ChunkSize() int { return b.arena.ChunkSize() }

// NodeCap returns the number of owned chunks.
func (b *Buffer) NodeCap() int {
	b.arena.Lock()
	defer b.arena.Unlock()
	return b.nodeCap
}

// NodeCount returns the number of chunks holding unread data.
func (b *Buffer) NodeCount() int {
	b.arena.Lock()
	defer b.arena.Unlock()
	return b.nodeCount
}

// FreeNodes returns the number of writable chunks.
func (b *Buffer) FreeNodes() int {
	b.arena.Lock()
	defer b.arena.Unlock()
	return b.nodeCap - b.nodeCount
}

// ByteCap returns the owned capacity in bytes.
func (b *Buffer) ByteCap() int { return b.NodeCap() * b.ChunkSize() }

// ByteCount returns the bytes charged to unread data.
func (b *Buffer) ByteCount() int { return b.NodeCount() * b.ChunkSize() }

// FreeBytes returns ByteCap - ByteCount.
func (b *Buffer) FreeBytes() int { return b.FreeNodes() * b.ChunkSize() }

// Seq returns the next sequence number to be assigned.
func (b *Buffer) Seq() uint32 {
	b.arena.Lock()
	defer b.arena.Unlock()
	return b.seq
}

// Stats returns a consistent snapshot of the bookkeeping.
func (b *Buffer) Stats() api.BufferStats {
	b.arena.Lock()
	defer b.arena.Unlock()
	cs := b.arena.ChunkSize()
	return api.BufferStats{
		ChunkSize: cs,
		NodeCap:   b.nodeCap,
		NodeCount: b.nodeCount,
		ByteCap:   b.nodeCap * cs,
		ByteCount: b.nodeCount * cs,
		Seq:       b.seq,
	}
}

// ChunksFor returns how many chunks a datagram of size bytes occupies.
func (b *Buffer) ChunksFor(size int) int {
	cs := b.arena.ChunkSize()
	return (size + cs - 1) / cs
}

// AllocateNodes seeds an empty, chunk-less buffer with count fresh chunks
// linked into a ring. Used once to build the shared pool.
func (b *Buffer) AllocateNodes(count int) error {
	b.arena.Lock()
	defer b.arena.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.nodeCap != 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "buffer already owns chunks").
			WithContext("node_cap", b.nodeCap)
	}
	if count > chunk.MaxChunks {
		return api.NewError(api.ErrCodeCapacityExceeded, "chunk count above system maximum").
			WithContext("count", count).
			WithContext("max", chunk.MaxChunks)
	}
	first, err := b.arena.Grow(count)
	if err != nil {
		return err
	}
	last := first + chunk.Handle(count-1)
	for h := first; h < last; h++ {
		b.arena.SetNext(h, h+1)
	}
	b.arena.SetNext(last, first)
	b.start, b.end = last, last
	b.nodeCap = count
	return nil
}

// Clear resets every owned chunk and drops all pending datagrams.
func (b *Buffer) Clear() {
	b.arena.Lock()
	defer b.arena.Unlock()
	if b.nodeCap == 0 || b.arena.Closed() {
		return
	}
	h := b.start
	for i := 0; i < b.nodeCap; i++ {
		b.arena.Chunk(h).Reset()
		h = b.arena.Next(h)
	}
	b.end = b.start
	b.nodeCount = 0
}

func (b *Buffer) checkOpen() error {
	if b.arena.Closed() {
		return api.ErrArenaClosed
	}
	return nil
}

func (b *Buffer) freeLocked() int { return b.nodeCap - b.nodeCount }
