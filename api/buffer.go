// Package api
// Author: momentics
//
// Chunk, buffer and pool contracts shared by the core packages.
//
// Chunks are carved out of one slab and are never copied when they change
// owner; only the payload write and the final read copy bytes.

package api

import "io"

// Packet is a length-delimited byte source consumed by chunk writes.
// *bytes.Reader and *bytes.Buffer satisfy it.
type Packet interface {
	io.Reader

	// Len returns the number of unread bytes.
	Len() int
}

// Kind tags the traffic class written into chunk metadata.
type Kind byte

const (
	KindNone    Kind = 0
	KindMessage Kind = 'm'
	KindData    Kind = 'd'
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindData:
		return "data"
	default:
		return "none"
	}
}

// BufferStats is a point-in-time view of a chunk buffer's bookkeeping.
type BufferStats struct {
	ChunkSize int
	NodeCap   int
	NodeCount int
	ByteCap   int
	ByteCount int
	Seq       uint32
}

// ArenaStats aggregates chunk arena accounting.
type ArenaStats struct {
	ChunkSize   int
	Chunks      int
	Slabs       int
	MappedBytes int64
	OffHeap     bool
}
