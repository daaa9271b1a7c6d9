// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the physical transport boundary. The peer hands it fully framed
// datagrams drained from the transmission pool and never interprets addressing.

package api

// Transport moves opaque frames between two peers.
type Transport interface {
	// Send transmits every frame in order; the slices may be reused after return.
	Send(frames [][]byte) error

	// Recv returns the frames received since the previous call, possibly none.
	Recv() ([][]byte, error)

	// Close shuts the transport down.
	Close() error

	// Features reports transport capabilities.
	Features() TransportFeatures
}

// TransportFeatures describes what a transport implementation supports.
type TransportFeatures struct {
	ZeroCopy   bool
	Batch      bool
	Reliable   bool
	MaxFrame   int
	StreamKind string
}
