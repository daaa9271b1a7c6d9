// File: peer/peer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Peer owns the chunk arena, the shared pool, the transmission pool and the
// channel registry. Lock order is Peer.mu, then the arena lock taken inside
// buffer calls. Flush and Poll are serialised separately so transport I/O
// never runs under Peer.mu.

package peer

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/control"
	"github.com/momentics/chunkmux/core/buffer"
	"github.com/momentics/chunkmux/core/chunk"
	"github.com/momentics/chunkmux/core/protocol"
	"github.com/momentics/chunkmux/pool"
)

// Options wires a Peer to its environment. Only Pool is required.
type Options struct {
	Pool      control.PoolConfig
	Transport api.Transport
	Logger    *zap.Logger
	Metrics   *control.Metrics
	Probes    *control.DebugProbes
	Allocator *pool.Allocator
	// Name distinguishes probes and log lines when several peers share a process.
	Name string
}

// Peer multiplexes channels over one transport.
type Peer struct {
	mu      sync.Mutex
	flushMu sync.Mutex
	pollMu  sync.Mutex
	wg      sync.WaitGroup

	cfg       control.PoolConfig
	name      string
	arena     *chunk.Arena
	pool      *buffer.Buffer
	tx        *buffer.Buffer
	buffers   map[BufferID]*buffer.Buffer
	channels  map[uint16]*channel
	outbound  *queue.Queue
	batch     *protocol.FrameBatch
	transport api.Transport
	closed    bool

	log     *zap.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes
}

// New builds a peer with a seeded shared pool and transmission pool.
func New(opts Options) (*Peer, error) {
	if err := opts.Pool.Validate(); err != nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, err.Error())
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name := opts.Name
	if name == "" {
		name = "peer"
	}
	log = log.Named(name)

	arena, err := chunk.NewArena(opts.Pool.ChunkSize, chunk.Options{
		OffHeap:   opts.Pool.OffHeap,
		Allocator: opts.Allocator,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	p := &Peer{
		cfg:       opts.Pool,
		name:      name,
		arena:     arena,
		pool:      buffer.New(arena),
		tx:        buffer.New(arena),
		buffers:   make(map[BufferID]*buffer.Buffer),
		channels:  make(map[uint16]*channel),
		outbound:  queue.New(),
		batch:     protocol.NewFrameBatch(opts.Pool.TxPoolChunks),
		transport: opts.Transport,
		log:       log,
		metrics:   opts.Metrics,
		probes:    opts.Probes,
	}
	if err := p.pool.AllocateNodes(opts.Pool.PoolChunks); err != nil {
		return nil, multierr.Append(err, arena.Close())
	}
	if err := p.tx.AllocateNodes(opts.Pool.TxPoolChunks); err != nil {
		return nil, multierr.Append(err, arena.Close())
	}
	p.registerProbes()
	p.observeLocked()
	log.Info("peer ready",
		zap.Int("chunk_size", opts.Pool.ChunkSize),
		zap.Int("pool_chunks", opts.Pool.PoolChunks),
		zap.Int("tx_pool_chunks", opts.Pool.TxPoolChunks),
		zap.Bool("off_heap", opts.Pool.OffHeap))
	return p, nil
}

// Stats is a point-in-time view of a peer.
type Stats struct {
	Arena        api.ArenaStats
	Pool         api.BufferStats
	TxPool       api.BufferStats
	Channels     int
	QueuedFrames int
}

// Stats returns current pool and queue accounting.
func (p *Peer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Arena:        p.arena.Stats(),
		Pool:         p.pool.Stats(),
		TxPool:       p.tx.Stats(),
		Channels:     len(p.channels),
		QueuedFrames: p.outbound.Length(),
	}
}

// ChannelStats reports the buffers of one channel.
type ChannelStats struct {
	Channel    uint16
	RemotePort uint16
	Message    api.BufferStats
	Data       api.BufferStats
	Inbound    int
	RxBytes    int
}

// ChannelStats returns the buffer accounting of ch.
func (p *Peer) ChannelStats(ch uint16) (ChannelStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.channelLocked(ch)
	if err != nil {
		return ChannelStats{}, err
	}
	return c.stats(), nil
}

func (c *channel) stats() ChannelStats {
	return ChannelStats{
		Channel:    c.id,
		RemotePort: c.remote,
		Message:    c.msg.Stats(),
		Data:       c.data.Stats(),
		Inbound:    c.inbound.Length(),
		RxBytes:    c.rxBytes,
	}
}

func (p *Peer) registerProbes() {
	if p.probes == nil {
		return
	}
	p.probes.RegisterProbe(p.name+".pool", func() any {
		return p.Stats()
	})
	p.probes.RegisterProbe(p.name+".channels", func() any {
		p.mu.Lock()
		defer p.mu.Unlock()
		out := make([]ChannelStats, 0, len(p.channels))
		for _, id := range p.sortedChannelsLocked() {
			out = append(out, p.channels[id].stats())
		}
		return out
	})
}

func (p *Peer) observeLocked() {
	if p.metrics == nil {
		return
	}
	p.metrics.ObservePool(p.pool.FreeNodes(), p.tx.NodeCount(), len(p.channels), p.outbound.Length())
}

// Close removes every channel, closes the transport and releases the arena.
// Frames still queued for the transport are discarded.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var err error
	if p.transport != nil {
		err = multierr.Append(err, p.transport.Close())
	}
	p.wg.Wait()
	if p.probes != nil {
		p.probes.UnregisterProbe(p.name + ".pool")
		p.probes.UnregisterProbe(p.name + ".channels")
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.sortedChannelsLocked() {
		err = multierr.Append(err, p.removeLocked(p.channels[id]))
	}
	if n := p.outbound.Length(); n > 0 {
		p.log.Warn("discarding unsent frames", zap.Int("frames", n))
	}
	p.outbound = queue.New()
	err = multierr.Append(err, p.arena.Close())
	p.log.Info("peer closed", zap.Error(err))
	return err
}
