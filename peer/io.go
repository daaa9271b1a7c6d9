// File: peer/io.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket-facing calls: per-channel writes, inbound delivery and capacity queries.

package peer

import (
	"bytes"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/buffer"
	"github.com/momentics/chunkmux/core/protocol"
)

// WriteToMessageBuffer appends src as one message datagram of ch.
func (p *Peer) WriteToMessageBuffer(ch uint16, src api.Packet) error {
	return p.write(ch, src, false)
}

// WriteToDataBuffer appends src as one data datagram of ch.
func (p *Peer) WriteToDataBuffer(ch uint16, src api.Packet) error {
	return p.write(ch, src, true)
}

func (p *Peer) write(ch uint16, src api.Packet, data bool) error {
	if n := src.Len(); n > protocol.MaxDatagramPayload {
		return api.NewError(api.ErrCodeCapacityExceeded, "datagram exceeds frame limit").
			WithContext("channel", ch).
			WithContext("size", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrTransportClosed
	}
	c, err := p.channelLocked(ch)
	if err != nil {
		return err
	}
	b, kind := c.msg, api.KindMessage
	if data {
		b, kind = c.data, api.KindData
	}
	if err := b.WritePacket(src); err != nil {
		return err
	}
	p.metrics.Written(kind.String())
	return nil
}

// Send queues payload on the data buffer of ch and reports the bytes accepted.
func (p *Peer) Send(ch uint16, payload []byte) (int, error) {
	if err := p.WriteToDataBuffer(ch, bytes.NewReader(payload)); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// SendMessage queues payload on the message buffer of ch. Message datagrams
// of a channel are flushed ahead of its data datagrams.
func (p *Peer) SendMessage(ch uint16, payload []byte) (int, error) {
	if err := p.WriteToMessageBuffer(ch, bytes.NewReader(payload)); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// Recv returns the next inbound datagram of ch, or nil when none is queued.
func (p *Peer) Recv(ch uint16) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.channelLocked(ch)
	if err != nil {
		return nil, err
	}
	if c.inbound.Length() == 0 {
		return nil, nil
	}
	d := c.inbound.Remove().([]byte)
	c.rxBytes -= len(d)
	return d, nil
}

// TxAvailable returns how many bytes ch can currently queue: its free data
// buffer bytes, capped by an equal share of the free pool.
func (p *Peer) TxAvailable(ch uint16) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[ch]
	if !ok || p.closed {
		return 0
	}
	share := p.pool.FreeBytes() / len(p.channels)
	return min(c.data.FreeBytes(), share)
}

// RxAvailable returns the bytes of inbound datagrams queued for ch.
func (p *Peer) RxAvailable(ch uint16) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[ch]
	if !ok {
		return 0
	}
	return c.rxBytes
}

// PendingDatagrams returns the complete datagrams waiting in the message and
// data buffers of ch.
func (p *Peer) PendingDatagrams(ch uint16) (msg, data int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[ch]
	if !ok {
		return 0, 0
	}
	return c.msg.PendingDatagrams(), c.data.PendingDatagrams()
}

func (c *channel) buffers() [2]*buffer.Buffer {
	return [2]*buffer.Buffer{c.msg, c.data}
}
