// File: core/chunk/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena owns every chunk of one pool. Chunks are addressed by 16-bit handles,
// so moving a chunk between buffers is a link rewrite and never a payload copy.
// The arena mutex is the cross-buffer lock: every buffer built on the arena
// holds it for the full duration of a mutation, donate and swap included, so
// a chunk can never sit in two rings at once.

package chunk

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/pool"
)

// Handle indexes a chunk inside its arena.
type Handle uint16

const (
	// NilHandle marks the absence of a chunk.
	NilHandle Handle = 0xFFFF
	// MaxChunks is the hard system-wide chunk limit imposed by 16-bit handles.
	MaxChunks = 65535
)

// Options configures arena construction.
type Options struct {
	OffHeap   bool
	Allocator *pool.Allocator
	Logger    *zap.Logger
}

// Arena is the single owner of chunk memory and chunk linkage.
type Arena struct {
	mu        sync.Mutex
	chunkSize int
	alloc     *pool.Allocator
	slabs     []*pool.Slab
	chunks    []Chunk
	closed    bool
	log       *zap.Logger
}

// NewArena creates an empty arena whose chunks all have chunkSize bytes.
func NewArena(chunkSize int, opts Options) (*Arena, error) {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "chunk size out of range").
			WithContext("chunk_size", chunkSize).
			WithContext("max", MaxChunkSize)
	}
	alloc := opts.Allocator
	if alloc == nil {
		alloc = pool.NewAllocator(opts.OffHeap)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Arena{
		chunkSize: chunkSize,
		alloc:     alloc,
		log:       log.Named("arena"),
	}, nil
}

// Lock acquires the cross-buffer lock. Buffer methods take it themselves;
// never call them while holding it.
func (a *Arena) Lock() { a.mu.Lock() }

// Unlock releases the cross-buffer lock.
func (a *Arena) Unlock() { a.mu.Unlock() }

// ChunkSize returns the uniform chunk capacity.
func (a *Arena) ChunkSize() int { return a.chunkSize }

// Closed reports whether Close has run. Caller holds the lock.
func (a *Arena) Closed() bool { return a.closed }

// Len returns the number of chunks ever allocated. Caller holds the lock.
func (a *Arena) Len() int { return len(a.chunks) }

// Grow allocates count fresh empty chunks backed by one new slab and returns
// the handle of the first; the rest follow contiguously. Links are left nil.
// Caller holds the lock.
func (a *Arena) Grow(count int) (Handle, error) {
	if a.closed {
		return NilHandle, api.ErrArenaClosed
	}
	if count <= 0 {
		return NilHandle, api.NewError(api.ErrCodeInvalidArgument, "chunk count must be positive").
			WithContext("count", count)
	}
	if len(a.chunks)+count > MaxChunks {
		return NilHandle, api.NewError(api.ErrCodeCapacityExceeded, "arena chunk limit reached").
			WithContext("have", len(a.chunks)).
			WithContext("want", count).
			WithContext("max", MaxChunks)
	}
	slab, err := a.alloc.Alloc(count * a.chunkSize)
	if err != nil {
		return NilHandle, err
	}
	first := Handle(len(a.chunks))
	mem := slab.Bytes()
	for i := 0; i < count; i++ {
		off := i * a.chunkSize
		a.chunks = append(a.chunks, Chunk{
			data: mem[off : off+a.chunkSize : off+a.chunkSize],
			next: NilHandle,
		})
	}
	a.slabs = append(a.slabs, slab)
	a.log.Debug("arena grown",
		zap.Int("chunks", count),
		zap.Int("total", len(a.chunks)),
		zap.Bool("off_heap", slab.OffHeap()))
	return first, nil
}

// Chunk returns the chunk behind h. The pointer is valid until the next Grow.
// Caller holds the lock.
func (a *Arena) Chunk(h Handle) *Chunk {
	return &a.chunks[h]
}

// Next returns the successor of h. Caller holds the lock.
func (a *Arena) Next(h Handle) Handle {
	return a.chunks[h].next
}

// SetNext links h to n. Caller holds the lock.
func (a *Arena) SetNext(h, n Handle) {
	a.chunks[h].next = n
}

// Walk follows steps links starting at h. Caller holds the lock.
func (a *Arena) Walk(h Handle, steps int) Handle {
	for i := 0; i < steps; i++ {
		h = a.chunks[h].next
	}
	return h
}

// Stats returns arena accounting.
func (a *Arena) Stats() api.ArenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	var mapped int64
	for _, s := range a.slabs {
		mapped += int64(s.Len())
	}
	return api.ArenaStats{
		ChunkSize:   a.chunkSize,
		Chunks:      len(a.chunks),
		Slabs:       len(a.slabs),
		MappedBytes: mapped,
		OffHeap:     a.alloc.OffHeap(),
	}
}

// Allocator exposes the slab allocator for observability.
func (a *Arena) Allocator() *pool.Allocator { return a.alloc }

// Close releases every slab. Buffers built on the arena must not be used afterwards.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	for _, s := range a.slabs {
		err = multierr.Append(err, s.Release())
	}
	a.slabs = nil
	a.chunks = nil
	return err
}
