// Package transport
// Author: momentics <momentics@gmail.com>
//
// Dial and accept helpers producing Stream transports.

package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, network, addr string) (*Stream, error) {
	d := net.Dialer{KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return NewStream(conn, 0), nil
}

// Listener accepts Stream transports.
type Listener struct {
	ln  net.Listener
	log *zap.Logger
}

// Listen opens a listener on addr.
func Listen(network, addr string, log *zap.Logger) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{ln: ln, log: log.Named("listener")}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for one connection. Cancelling ctx closes the listener.
func (l *Listener) Accept(ctx context.Context) (*Stream, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		l.log.Debug("accepted", zap.Stringer("remote", r.conn.RemoteAddr()))
		return NewStream(r.conn, 0), nil
	case <-ctx.Done():
		_ = l.ln.Close()
		if r := <-ch; r.conn != nil {
			_ = r.conn.Close()
		}
		return nil, ctx.Err()
	}
}

// Close stops accepting.
func (l *Listener) Close() error { return l.ln.Close() }
