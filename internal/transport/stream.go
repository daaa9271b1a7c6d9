// Package transport
// Author: momentics <momentics@gmail.com>
//
// api.Transport over a net.Conn.

package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/protocol"
)

// DefaultMaxBatch bounds the frames returned by one Recv.
const DefaultMaxBatch = 64

// Stream frames datagrams over a connected byte stream.
type Stream struct {
	conn     net.Conn
	reader   *bufio.Reader
	wmu      sync.Mutex
	rmu      sync.Mutex
	maxBatch int
	closed   chan struct{}
	once     sync.Once
	closeErr error
	features api.TransportFeatures
}

// NewStream wraps conn. maxBatch <= 0 selects DefaultMaxBatch.
func NewStream(conn net.Conn, maxBatch int) *Stream {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	network := "stream"
	if addr := conn.LocalAddr(); addr != nil {
		network = addr.Network()
	}
	return &Stream{
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, 64*1024),
		maxBatch: maxBatch,
		closed:   make(chan struct{}),
		features: api.TransportFeatures{
			ZeroCopy:   false,
			Batch:      true,
			Reliable:   true,
			MaxFrame:   protocol.MaxFramePayload,
			StreamKind: network,
		},
	}
}

// Send writes every frame, each behind its length prefix, in one vectored write.
// A write that fails after some bytes went out closes the stream, so a failed
// Send is never retried onto a half-written batch.
func (s *Stream) Send(frames [][]byte) error {
	if s.isClosed() {
		return api.ErrTransportClosed
	}
	if len(frames) == 0 {
		return nil
	}
	bufs := make(net.Buffers, 0, 2*len(frames))
	prefixes := make([]byte, protocol.LengthPrefixLen*len(frames))
	for i, f := range frames {
		if len(f) > protocol.MaxFramePayload {
			return api.NewError(api.ErrCodeCapacityExceeded, "frame exceeds maximum allowed size").
				WithContext("index", i).
				WithContext("size", len(f))
		}
		hdr := prefixes[i*protocol.LengthPrefixLen : (i+1)*protocol.LengthPrefixLen]
		binary.BigEndian.PutUint32(hdr, uint32(len(f)))
		bufs = append(bufs, hdr)
		if len(f) > 0 {
			bufs = append(bufs, f)
		}
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := bufs.WriteTo(s.conn)
	if err != nil && n > 0 && !s.isClosed() {
		// The peer now holds part of the batch; the stream cannot be resynchronised.
		_ = s.Close()
		return api.NewError(api.ErrCodeTransportClosed, "partial batch write").
			WithContext("written", n).
			WithContext("cause", err.Error())
	}
	return s.mapErr(err)
}

// Recv blocks for one frame and returns it together with every further
// complete frame already buffered, up to the batch limit.
func (s *Stream) Recv() ([][]byte, error) {
	if s.isClosed() {
		return nil, api.ErrTransportClosed
	}
	s.rmu.Lock()
	defer s.rmu.Unlock()
	first, err := protocol.ReadFrame(s.reader)
	if err != nil {
		return nil, s.mapErr(err)
	}
	frames := [][]byte{first}
	for len(frames) < s.maxBatch && s.frameBuffered() {
		f, err := protocol.ReadFrame(s.reader)
		if err != nil {
			return frames, s.mapErr(err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// frameBuffered reports whether a whole frame can be read without blocking.
func (s *Stream) frameBuffered() bool {
	n := s.reader.Buffered()
	if n < protocol.LengthPrefixLen {
		return false
	}
	hdr, err := s.reader.Peek(protocol.LengthPrefixLen)
	if err != nil {
		return false
	}
	return n-protocol.LengthPrefixLen >= int(binary.BigEndian.Uint32(hdr))
}

// Close closes the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Features implements api.Transport.
func (s *Stream) Features() api.TransportFeatures { return s.features }

// RemoteAddr returns the peer address of the underlying connection.
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return api.ErrTransportClosed
	case s.isClosed():
		return api.ErrTransportClosed
	}
	return err
}
