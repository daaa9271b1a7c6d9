// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake packet source for exercising partial-write paths.

package fake

import (
	"errors"
)

// ErrPacketFailed is returned by Packet once its failure point is reached.
var ErrPacketFailed = errors.New("fake packet read failed")

// Packet is an api.Packet that reports its full length but fails after
// FailAfter bytes have been read. FailAfter < 0 never fails.
type Packet struct {
	data      []byte
	off       int
	FailAfter int
}

// NewPacket creates a packet over a copy of data.
func NewPacket(data []byte, failAfter int) *Packet {
	return &Packet{data: append([]byte(nil), data...), FailAfter: failAfter}
}

// Len returns the unread length.
func (p *Packet) Len() int { return len(p.data) - p.off }

// Read implements io.Reader.
func (p *Packet) Read(dst []byte) (int, error) {
	if p.off >= len(p.data) {
		return 0, errors.New("fake packet exhausted")
	}
	limit := len(p.data)
	if p.FailAfter >= 0 {
		if p.off >= p.FailAfter {
			return 0, ErrPacketFailed
		}
		limit = p.FailAfter
	}
	n := copy(dst, p.data[p.off:limit])
	p.off += n
	return n, nil
}
