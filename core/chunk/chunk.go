// File: core/chunk/chunk.go
// Package chunk implements the fixed-capacity storage granule of the chunk pool
// and the handle-indexed arena that owns every chunk.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A chunk is written exactly once, read exactly once and reset by the read.
// It never holds a partial write: a second write to a non-empty chunk fails.

package chunk

import (
	"io"

	"github.com/momentics/chunkmux/api"
)

const (
	// DefaultChunkSize is the capacity of chunks built without an explicit size.
	DefaultChunkSize = 2048
	// MaxChunkSize bounds a single chunk.
	MaxChunkSize = 64 * 1024
)

// Metadata is local bookkeeping attached when a chunk is written.
// It is never serialised on the wire.
type Metadata struct {
	Dest uint16
	Seq  uint32
	Kind api.Kind
}

// Chunk is one fixed-capacity byte buffer with ring linkage.
type Chunk struct {
	data        []byte
	used        int
	next        Handle
	datagramLen uint32
	meta        Metadata
}

// New builds a standalone heap-backed chunk; capacity <= 0 selects DefaultChunkSize.
func New(capacity int) *Chunk {
	if capacity <= 0 {
		capacity = DefaultChunkSize
	}
	return &Chunk{data: make([]byte, capacity), next: NilHandle}
}

// Cap returns the fixed byte capacity.
func (c *Chunk) Cap() int { return len(c.data) }

// Len returns the number of used bytes.
func (c *Chunk) Len() int { return c.used }

// Empty reports whether the chunk can be written.
func (c *Chunk) Empty() bool { return c.used == 0 }

// Bytes returns a view of the used bytes. The view is invalidated by Read or Reset.
func (c *Chunk) Bytes() []byte { return c.data[:c.used] }

// IsHeader reports whether a datagram starts at this chunk.
func (c *Chunk) IsHeader() bool { return c.datagramLen != 0 }

// DatagramLen returns the total datagram length on header chunks, 0 otherwise.
func (c *Chunk) DatagramLen() int { return int(c.datagramLen) }

// Metadata returns the metadata set by the last write.
func (c *Chunk) Metadata() Metadata { return c.meta }

// Write copies data into an empty chunk in one shot.
func (c *Chunk) Write(data []byte) (int, error) {
	if c.used != 0 {
		return 0, api.NewError(api.ErrCodeMalformedFraming, "chunk already holds data").
			WithContext("used", c.used)
	}
	if len(data) == 0 {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "empty chunk write")
	}
	if len(data) > len(c.data) {
		return 0, api.NewError(api.ErrCodeCapacityExceeded, "write exceeds chunk capacity").
			WithContext("size", len(data)).
			WithContext("cap", len(c.data))
	}
	c.used = copy(c.data, data)
	return c.used, nil
}

// WriteFrom consumes up to Cap() bytes from src and reports how many it took.
func (c *Chunk) WriteFrom(src api.Packet) (int, error) {
	if c.used != 0 {
		return 0, api.NewError(api.ErrCodeMalformedFraming, "chunk already holds data").
			WithContext("used", c.used)
	}
	n := min(src.Len(), len(c.data))
	if n == 0 {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "empty chunk write")
	}
	read, err := io.ReadFull(src, c.data[:n])
	if err != nil {
		return read, err
	}
	c.used = read
	return read, nil
}

// Read copies the used bytes into dst and resets the chunk.
// If dst is too small nothing is consumed.
func (c *Chunk) Read(dst []byte) (int, error) {
	if len(dst) < c.used {
		return 0, api.NewError(api.ErrCodeShortBuffer, "chunk read destination too small").
			WithContext("need", c.used).
			WithContext("have", len(dst))
	}
	n := copy(dst, c.data[:c.used])
	c.Reset()
	return n, nil
}

// MarkAsDatagramStart records the full length of the datagram beginning here.
func (c *Chunk) MarkAsDatagramStart(total int) {
	c.datagramLen = uint32(total)
}

// SetMetadata tags the chunk with destination, sequence number and kind.
func (c *Chunk) SetMetadata(dest uint16, seq uint32, kind api.Kind) {
	c.meta = Metadata{Dest: dest, Seq: seq, Kind: kind}
}

// Reset empties the chunk. Payload bytes are left in place and overwritten by the next write.
func (c *Chunk) Reset() {
	c.used = 0
	c.datagramLen = 0
	c.meta = Metadata{}
}
