package transport_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/protocol"
	"github.com/momentics/chunkmux/internal/transport"
)

var _ api.Transport = (*transport.Stream)(nil)

func recvN(t *testing.T, s *transport.Stream, n int) [][]byte {
	t.Helper()
	var got [][]byte
	for len(got) < n {
		frames, err := s.Recv()
		require.NoError(t, err)
		got = append(got, frames...)
	}
	return got
}

func TestStreamOverPipe(t *testing.T) {
	c1, c2 := net.Pipe()
	a := transport.NewStream(c1, 0)
	b := transport.NewStream(c2, 0)
	defer a.Close()
	defer b.Close()

	want := [][]byte{[]byte("one"), {}, []byte("three")}
	errc := make(chan error, 1)
	go func() { errc <- a.Send(want) }()

	got := recvN(t, b, 3)
	require.NoError(t, <-errc)
	assert.Equal(t, [][]byte{[]byte("one"), {}, []byte("three")}, got)

	feats := a.Features()
	assert.True(t, feats.Batch)
	assert.True(t, feats.Reliable)
	assert.Equal(t, protocol.MaxFramePayload, feats.MaxFrame)
	assert.Equal(t, "pipe", feats.StreamKind)
}

func TestStreamCloseSemantics(t *testing.T) {
	c1, c2 := net.Pipe()
	a := transport.NewStream(c1, 0)
	b := transport.NewStream(c2, 0)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send([][]byte{{1}}), api.ErrTransportClosed)
	_, err := a.Recv()
	assert.ErrorIs(t, err, api.ErrTransportClosed)

	_, err = b.Recv()
	assert.Error(t, err)
	_ = b.Close()
}

// brokenConn accepts budget bytes and fails every write after that.
type brokenConn struct {
	net.Conn
	budget int
	closed bool
}

var errBrokenPipe = errors.New("broken pipe")

func (c *brokenConn) Write(p []byte) (int, error) {
	n := min(len(p), c.budget)
	c.budget -= n
	if n < len(p) {
		return n, errBrokenPipe
	}
	return n, nil
}

func (c *brokenConn) LocalAddr() net.Addr { return nil }

func (c *brokenConn) Close() error {
	c.closed = true
	return nil
}

func TestStreamClosesAfterPartialWrite(t *testing.T) {
	conn := &brokenConn{budget: protocol.LengthPrefixLen + 2}
	s := transport.NewStream(conn, 0)

	err := s.Send([][]byte{[]byte("payload"), []byte("more")})
	assert.ErrorIs(t, err, api.ErrTransportClosed)
	assert.Equal(t, api.ErrCodeTransportClosed, api.CodeOf(err))
	assert.True(t, conn.closed)
	assert.ErrorIs(t, s.Send([][]byte{[]byte("again")}), api.ErrTransportClosed)
}

func TestStreamStaysOpenWhenNothingWritten(t *testing.T) {
	conn := &brokenConn{}
	s := transport.NewStream(conn, 0)

	err := s.Send([][]byte{[]byte("payload")})
	assert.ErrorIs(t, err, errBrokenPipe)
	assert.NotErrorIs(t, err, api.ErrTransportClosed)
	assert.False(t, conn.closed)
	require.NoError(t, s.Close())
	assert.True(t, conn.closed)
}

func TestStreamRejectsOversizeFrame(t *testing.T) {
	c1, c2 := net.Pipe()
	a := transport.NewStream(c1, 0)
	defer a.Close()
	defer c2.Close()
	err := a.Send([][]byte{make([]byte, protocol.MaxFramePayload+1)})
	assert.ErrorIs(t, err, api.ErrCapacityExceeded)
}

func TestDialListenLoopback(t *testing.T) {
	ln, err := transport.Listen("tcp", "127.0.0.1:0", nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan *transport.Stream, 1)
	go func() {
		s, err := ln.Accept(ctx)
		if err == nil {
			accepted <- s
		}
		close(accepted)
	}()

	client, err := transport.Dial(ctx, "tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	frames := [][]byte{[]byte("a"), []byte("bc"), []byte("def")}
	require.NoError(t, client.Send(frames))
	assert.Equal(t, frames, recvN(t, server, 3))
	assert.Equal(t, "tcp", client.Features().StreamKind)
}

func TestAcceptHonoursContext(t *testing.T) {
	ln, err := transport.Listen("tcp", "127.0.0.1:0", nil)
	require.NoError(t, err)
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
