// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus telemetry for the chunk pool and channel traffic.
// A nil *Metrics is valid and records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics groups every chunkmux collector.
type Metrics struct {
	PoolFreeChunks   prometheus.Gauge
	TxPoolChunks     prometheus.Gauge
	ActiveChannels   prometheus.Gauge
	QueuedFrames     prometheus.Gauge
	DatagramsWritten *prometheus.CounterVec
	DatagramsSent    prometheus.Counter
	DatagramsRecv    prometheus.Counter
	DatagramsDropped *prometheus.CounterVec
	ChunksSwapped    prometheus.Counter
	ChunksDonated    prometheus.Counter
	TransportErrors  prometheus.Counter
}

// NewMetrics builds the collectors under namespace and registers them on reg.
// A nil reg skips registration.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		PoolFreeChunks: gauge("pool_free_chunks", "Free chunks in the shared pool."),
		TxPoolChunks:   gauge("tx_pool_pending_chunks", "Chunks waiting in the transmission pool."),
		ActiveChannels: gauge("active_channels", "Channels with an allocated buffer pair."),
		QueuedFrames:   gauge("queued_frames", "Encoded frames waiting for the transport."),
		DatagramsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "datagrams_written_total", Help: "Datagrams accepted into channel buffers.",
		}, []string{"kind"}),
		DatagramsSent: counter("datagrams_sent_total", "Datagrams handed to the transport."),
		DatagramsRecv: counter("datagrams_received_total", "Datagrams delivered to channel inbound queues."),
		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "datagrams_dropped_total", Help: "Inbound datagrams discarded.",
		}, []string{"reason"}),
		ChunksSwapped:   counter("chunks_swapped_total", "Chunks moved into the transmission pool."),
		ChunksDonated:   counter("chunks_donated_total", "Chunks granted to or returned from channel buffers."),
		TransportErrors: counter("transport_errors_total", "Failed transport sends and receives."),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	for _, c := range m.collectors() {
		err = multierr.Append(err, reg.Register(c))
	}
	return m, err
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PoolFreeChunks, m.TxPoolChunks, m.ActiveChannels, m.QueuedFrames,
		m.DatagramsWritten, m.DatagramsSent, m.DatagramsRecv, m.DatagramsDropped,
		m.ChunksSwapped, m.ChunksDonated, m.TransportErrors,
	}
}

// Unregister removes every collector from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if m == nil || reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// ObservePool records the pool gauges.
func (m *Metrics) ObservePool(free, txPending, channels, queued int) {
	if m == nil {
		return
	}
	m.PoolFreeChunks.Set(float64(free))
	m.TxPoolChunks.Set(float64(txPending))
	m.ActiveChannels.Set(float64(channels))
	m.QueuedFrames.Set(float64(queued))
}

// Written counts one accepted datagram of the given kind.
func (m *Metrics) Written(kind string) {
	if m != nil {
		m.DatagramsWritten.WithLabelValues(kind).Inc()
	}
}

// Sent counts n transmitted datagrams.
func (m *Metrics) Sent(n int) {
	if m != nil {
		m.DatagramsSent.Add(float64(n))
	}
}

// Received counts one delivered datagram.
func (m *Metrics) Received() {
	if m != nil {
		m.DatagramsRecv.Inc()
	}
}

// Dropped counts one discarded inbound datagram.
func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.DatagramsDropped.WithLabelValues(reason).Inc()
	}
}

// Swapped counts chunks moved into the transmission pool.
func (m *Metrics) Swapped(n int) {
	if m != nil {
		m.ChunksSwapped.Add(float64(n))
	}
}

// Donated counts chunks moved between the pool and channel buffers.
func (m *Metrics) Donated(n int) {
	if m != nil {
		m.ChunksDonated.Add(float64(n))
	}
}

// TransportError counts one transport failure.
func (m *Metrics) TransportError() {
	if m != nil {
		m.TransportErrors.Inc()
	}
}
