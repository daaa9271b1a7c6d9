// File: peer/registry.go
// Package peer multiplexes channels over one transport by partitioning a
// shared chunk pool into per-channel message and data buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every active channel owns exactly one message buffer and one data buffer.
// Both are created by donation from the shared pool and give every chunk
// back when the channel is removed.

package peer

import (
	"slices"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/buffer"
)

// BufferID names a buffer in the registry.
type BufferID uint32

const dataBufferBit BufferID = 1 << 31

// MessageBufferID returns the id of a channel's message buffer.
func MessageBufferID(ch uint16) BufferID { return BufferID(ch) }

// DataBufferID returns the id of a channel's data buffer.
func DataBufferID(ch uint16) BufferID { return BufferID(ch) | dataBufferBit }

// Channel returns the channel a buffer id belongs to and whether it is a data buffer.
func (id BufferID) Channel() (ch uint16, data bool) {
	return uint16(id &^ dataBufferBit), id&dataBufferBit != 0
}

type channel struct {
	id      uint16
	remote  uint16
	msg     *buffer.Buffer
	data    *buffer.Buffer
	inbound *queue.Queue
	rxBytes int
}

// CanCreateBufferPair reports whether the pool can fund one more channel.
func (p *Peer) CanCreateBufferPair() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.pairCost() <= p.pool.FreeNodes()
}

func (p *Peer) pairCost() int { return p.cfg.MessageChunks + p.cfg.DataChunks }

// CreateBufferPair activates ch with a message and a data buffer funded
// from the shared pool. The remote port defaults to ch.
func (p *Peer) CreateBufferPair(ch uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrTransportClosed
	}
	if _, ok := p.channels[ch]; ok {
		return api.NewError(api.ErrCodeAlreadyExists, "channel already active").
			WithContext("channel", ch)
	}
	if free := p.pool.FreeNodes(); p.pairCost() > free {
		return api.NewError(api.ErrCodeCapacityExceeded, "pool cannot fund buffer pair").
			WithContext("channel", ch).
			WithContext("need", p.pairCost()).
			WithContext("free", free)
	}

	msg := buffer.New(p.arena)
	if err := p.pool.DonateNodes(msg, p.cfg.MessageChunks); err != nil {
		return err
	}
	data := buffer.New(p.arena)
	if err := p.pool.DonateNodes(data, p.cfg.DataChunks); err != nil {
		return multierr.Append(err, msg.DonateNodes(p.pool, msg.NodeCap()))
	}
	c := &channel{id: ch, msg: msg, data: data, inbound: queue.New()}
	p.setRemoteLocked(c, ch)

	p.channels[ch] = c
	p.buffers[MessageBufferID(ch)] = msg
	p.buffers[DataBufferID(ch)] = data
	p.metrics.Donated(p.pairCost())
	p.observeLocked()
	p.log.Debug("buffer pair created",
		zap.Uint16("channel", ch),
		zap.Int("pool_free", p.pool.FreeNodes()))
	return nil
}

// RemoveBufferPair clears both buffers of ch, returns every chunk to the
// pool and drops undelivered inbound datagrams.
func (p *Peer) RemoveBufferPair(ch uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[ch]
	if !ok {
		return api.NewError(api.ErrCodeNotFound, "channel not active").
			WithContext("channel", ch)
	}
	err := p.removeLocked(c)
	p.observeLocked()
	return err
}

func (p *Peer) removeLocked(c *channel) error {
	var err error
	returned := 0
	for _, b := range []*buffer.Buffer{c.msg, c.data} {
		b.Clear()
		if n := b.NodeCap(); n > 0 {
			err = multierr.Append(err, b.DonateNodes(p.pool, n))
			returned += n
		}
	}
	if c.inbound.Length() > 0 {
		p.log.Debug("dropping undelivered datagrams",
			zap.Uint16("channel", c.id),
			zap.Int("count", c.inbound.Length()))
	}
	delete(p.channels, c.id)
	delete(p.buffers, MessageBufferID(c.id))
	delete(p.buffers, DataBufferID(c.id))
	p.metrics.Donated(returned)
	p.log.Debug("buffer pair removed",
		zap.Uint16("channel", c.id),
		zap.Int("pool_free", p.pool.FreeNodes()))
	return err
}

// Buffer looks up a registered buffer.
func (p *Peer) Buffer(id BufferID) (*buffer.Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buffers[id]
	return b, ok
}

// SetRemotePort sets the destination port stamped on the channel's
// outgoing datagrams.
func (p *Peer) SetRemotePort(ch, port uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.channelLocked(ch)
	if err != nil {
		return err
	}
	p.setRemoteLocked(c, port)
	return nil
}

func (p *Peer) setRemoteLocked(c *channel, port uint16) {
	c.remote = port
	c.msg.SetMetadata(port, api.KindMessage)
	c.data.SetMetadata(port, api.KindData)
}

// Channels returns the active channel ids in ascending order.
func (p *Peer) Channels() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedChannelsLocked()
}

func (p *Peer) sortedChannelsLocked() []uint16 {
	ids := make([]uint16, 0, len(p.channels))
	for id := range p.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ChannelCount returns the number of active channels.
func (p *Peer) ChannelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

// FreePoolChunks returns the number of unassigned chunks in the shared pool.
func (p *Peer) FreePoolChunks() int {
	return p.pool.FreeNodes()
}

func (p *Peer) channelLocked(ch uint16) (*channel, error) {
	c, ok := p.channels[ch]
	if !ok {
		return nil, api.NewError(api.ErrCodeNotFound, "channel not active").
			WithContext("channel", ch)
	}
	return c, nil
}
