// File: peer/flush.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transmission and reception. Flush moves whole head datagrams from channel
// buffers into the transmission pool by chunk swap, drains the pool into
// port-tagged frames and hands them to the transport as one batch. Poll
// routes received frames to channel inbound queues by destination port.

package peer

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/protocol"
)

var errNoTransport = api.NewError(api.ErrCodeInvalidArgument, "peer has no transport")

// Flush transmits every datagram that fits the transmission pool. Channels
// are visited in ascending id order, message buffers before data buffers.
// Frames the transport rejects stay queued for the next Flush, and no new
// datagrams are staged until they are sent. It returns the number of frames
// sent.
func (p *Peer) Flush(ctx context.Context) (int, error) {
	if p.transport == nil {
		return 0, errNoTransport
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, api.ErrTransportClosed
	}
	// Frames left over from a failed Send are retried before anything else
	// leaves the channel buffers, so a dead link backs up into them.
	if p.outbound.Length() == 0 {
		if err := p.stageLocked(); err != nil {
			p.mu.Unlock()
			return 0, err
		}
	}
	n := p.outbound.Length()
	if n == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	p.batch.Reset()
	for i := 0; i < n; i++ {
		p.batch.Append(p.outbound.Get(i).([]byte))
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := p.transport.Send(p.batch.Underlying()); err != nil {
		p.metrics.TransportError()
		p.log.Warn("transport send failed",
			zap.Int("frames", n),
			zap.Int("bytes", p.batch.Bytes()),
			zap.Error(err))
		return 0, err
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		p.outbound.Remove()
	}
	p.observeLocked()
	p.mu.Unlock()
	p.batch.Reset()
	p.metrics.Sent(n)
	p.log.Debug("flushed", zap.Int("frames", n))
	return n, nil
}

// stageLocked swaps ready datagrams into the transmission pool and encodes
// everything the pool holds into the outbound queue.
func (p *Peer) stageLocked() error {
	swapped := 0
	for _, id := range p.sortedChannelsLocked() {
		for _, b := range p.channels[id].buffers() {
			free := p.tx.FreeNodes()
			if free == 0 {
				break
			}
			n := b.HeadDatagramChunks(free)
			if n == 0 {
				continue
			}
			if err := p.tx.SwapNodes(b, n); err != nil {
				return err
			}
			swapped += n
		}
	}
	p.metrics.Swapped(swapped)

	for {
		hdr, err := p.tx.Peek()
		if errors.Is(err, api.ErrEmptyBuffer) {
			break
		}
		if err != nil {
			return err
		}
		frame := make([]byte, 0, protocol.PortHeaderLen+hdr.Length)
		frame = protocol.AppendFrame(frame, hdr.Dest, nil)
		if frame, _, err = p.tx.AppendDatagram(frame); err != nil {
			return err
		}
		p.outbound.Add(frame)
	}
	p.observeLocked()
	return nil
}

// Poll receives one transport batch and delivers its datagrams. Frames that
// are truncated or addressed to an inactive channel are dropped. It returns
// the number of datagrams delivered.
func (p *Peer) Poll(ctx context.Context) (int, error) {
	if p.transport == nil {
		return 0, errNoTransport
	}
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	frames, err := p.transport.Recv()
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, api.ErrTransportClosed
	}
	delivered := 0
	for _, f := range frames {
		port, payload, err := protocol.Decapsulate(f)
		if err != nil {
			p.metrics.Dropped("truncated")
			p.log.Debug("dropping truncated frame", zap.Int("size", len(f)))
			continue
		}
		c, ok := p.channels[port]
		if !ok {
			p.metrics.Dropped("unknown_port")
			p.log.Debug("dropping frame for inactive port", zap.Uint16("port", port))
			continue
		}
		c.inbound.Add(append([]byte(nil), payload...))
		c.rxBytes += len(payload)
		delivered++
		p.metrics.Received()
	}
	return delivered, nil
}

// Run flushes every interval and polls continuously until ctx is done. The
// poll loop keeps running until the transport is closed by Close.
func (p *Peer) Run(ctx context.Context, interval time.Duration) error {
	if p.transport == nil {
		return errNoTransport
	}
	if interval <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "flush interval must be positive").
			WithContext("interval", interval)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx, interval)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil {
				if errors.Is(err, api.ErrTransportClosed) {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

func (p *Peer) pollLoop(ctx context.Context, idle time.Duration) {
	for ctx.Err() == nil {
		n, err := p.Poll(ctx)
		switch {
		case errors.Is(err, api.ErrTransportClosed), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			return
		case err != nil:
			p.metrics.TransportError()
			p.log.Warn("transport receive failed", zap.Error(err))
		case n > 0:
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(idle):
		}
	}
}
