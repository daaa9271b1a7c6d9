// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the chunkmux contracts.

package fake

import (
	"sync"

	"github.com/momentics/chunkmux/api"
)

// Transport is an in-memory api.Transport. Frames sent on one end of a
// pair become receivable on the other; a standalone Transport records
// sends and replays frames queued with AddRecvData.
type Transport struct {
	mu         sync.Mutex
	peer       *Transport
	sent       [][]byte
	recv       [][]byte
	batches    int
	closed     bool
	sendError  error
	recvError  error
	closeError error
	features   api.TransportFeatures
}

// NewTransport creates a standalone fake transport.
func NewTransport() *Transport {
	return &Transport{
		features: api.TransportFeatures{
			ZeroCopy:   false,
			Batch:      true,
			Reliable:   true,
			StreamKind: "fake",
		},
	}
}

// NewPipe returns two connected fake transports.
func NewPipe() (*Transport, *Transport) {
	a, b := NewTransport(), NewTransport()
	a.peer, b.peer = b, a
	return a, b
}

// Send implements api.Transport.Send. Frames are copied.
func (t *Transport) Send(frames [][]byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return api.ErrTransportClosed
	}
	if t.sendError != nil {
		err := t.sendError
		t.mu.Unlock()
		return err
	}
	copies := make([][]byte, len(frames))
	for i, f := range frames {
		copies[i] = append([]byte(nil), f...)
	}
	t.sent = append(t.sent, copies...)
	t.batches++
	peer := t.peer
	t.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		if !peer.closed {
			peer.recv = append(peer.recv, copies...)
		}
		peer.mu.Unlock()
	}
	return nil
}

// Recv implements api.Transport.Recv. It never blocks and returns an empty
// batch when nothing is pending.
func (t *Transport) Recv() ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, api.ErrTransportClosed
	}
	if t.recvError != nil {
		return nil, t.recvError
	}
	frames := t.recv
	t.recv = nil
	return frames, nil
}

// Close implements api.Transport.Close.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeError != nil {
		return t.closeError
	}
	t.closed = true
	return nil
}

// Features implements api.Transport.Features.
func (t *Transport) Features() api.TransportFeatures {
	return t.features
}

// SetSendError configures the transport to return an error on Send.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendError = err
}

// SetRecvError configures the transport to return an error on Recv.
func (t *Transport) SetRecvError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvError = err
}

// SetCloseError configures the transport to return an error on Close.
func (t *Transport) SetCloseError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeError = err
}

// AddRecvData queues a frame for the next Recv call.
func (t *Transport) AddRecvData(frame []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recv = append(t.recv, append([]byte(nil), frame...))
}

// SentFrames returns every frame accepted by Send.
func (t *Transport) SentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// Batches returns the number of successful Send calls.
func (t *Transport) Batches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batches
}

// ClearSent forgets recorded frames.
func (t *Transport) ClearSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
	t.batches = 0
}
