// Package socket wraps a single-use, client-dialed TCP or TLS connection with
// the vectored-write and deadline idioms a TCP server used
// server-side, turned around for the Link's outbound direction.
package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// CloseMode selects how a Socket's underlying connection is torn down.
type CloseMode int

const (
	// CloseSSLNotify performs an orderly TLS close_notify (or, for a plain
	// TCP socket, a regular Close) before releasing the file descriptor.
	CloseSSLNotify CloseMode = iota
	// CloseReset skips the close handshake and resets the connection
	// immediately, used when the Link is terminating due to a protocol
	// violation and waiting for a clean shutdown is pointless.
	CloseReset
)

// CloseOpts configures Socket.Close.
type CloseOpts struct {
	Mode CloseMode
}

var (
	// ErrTimeout is returned when a read or write deadline elapses.
	ErrTimeout = errors.New("socket: timeout")
	// ErrReset is returned when the peer resets the connection.
	ErrReset = errors.New("socket: connection reset")
	// ErrEOF is returned when the peer closes its write side.
	ErrEOF = errors.New("socket: eof")
	// ErrTLSHandshake is returned when the TLS handshake fails.
	ErrTLSHandshake = errors.New("socket: tls handshake failed")
	// ErrResolve is returned when DialSocket's address is not a "host:port"
	// pair. DialSocket does not check that host is an IP literal; resolution
	// is the Peer's job (internal/resolvers), not the Socket's.
	ErrResolve = errors.New("socket: address must be pre-resolved host:port")
)

// Socket is a single-use, full-duplex byte stream to one destination
// endpoint. A Link owns exactly one Socket for its lifetime; once Close
// returns, the Socket is never reused.
type Socket interface {
	// WriteAll writes every buffer in order, using a single vectored
	// net.Buffers.WriteTo call where the underlying net.Conn supports it
	// (the same pattern TCPServer.writeMessage uses for its length-prefix +
	// payload pair). It returns the total bytes written.
	WriteAll(ctx context.Context, buffers net.Buffers) (int, error)

	// Read reads into b. It returns ErrEOF when the peer has closed its write
	// side, ErrReset for a reset or already-closed connection, and ErrTimeout
	// when ctx's deadline elapses.
	Read(ctx context.Context, b []byte) (int, error)

	// WaitReadable sets the read deadline from ctx and makes a zero-length
	// Read, which returns at once; it does not wait for data to arrive.
	WaitReadable(ctx context.Context) error

	// WaitWritable sets the write deadline from ctx and returns nil; it does
	// not wait.
	WaitWritable(ctx context.Context) error

	// Close tears down the connection per opts. Idempotent: a second Close
	// call returns nil without touching the (already-released) descriptor.
	Close(opts CloseOpts) error

	// RemoteAddr returns the peer address the Socket is connected to.
	RemoteAddr() net.Addr
}

type tcpSocket struct {
	conn   net.Conn
	closed chan struct{}
	once   chan struct{} // closed exactly once, guards double-Close
}

// DialSocket is the only constructor for a Socket. addr must already be a
// resolved "host:port" pair; resolving a destination name to an address is
// the Peer's responsibility via internal/resolvers, keeping Socket ignorant
// of DNS the same way TCPServer never resolved the clients that connected to
// it.
func DialSocket(ctx context.Context, addr string, tlsConfig *tls.Config) (Socket, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolve, err)
	}

	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if tlsConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTLSHandshake, err)
		}
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
	}

	return &tcpSocket{
		conn:   conn,
		closed: make(chan struct{}),
		once:   make(chan struct{}, 1),
	}, nil
}

func deadlineFor(ctx context.Context) (time.Time, bool) {
	return ctx.Deadline()
}

func (s *tcpSocket) WriteAll(ctx context.Context, buffers net.Buffers) (int, error) {
	if dl, ok := deadlineFor(ctx); ok {
		_ = s.conn.SetWriteDeadline(dl)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}

	n, err := buffers.WriteTo(s.conn)
	if err != nil {
		return int(n), classifyErr(err)
	}
	return int(n), nil
}

func (s *tcpSocket) Read(ctx context.Context, b []byte) (int, error) {
	if dl, ok := deadlineFor(ctx); ok {
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	n, err := s.conn.Read(b)
	if err != nil {
		return n, classifyErr(err)
	}
	return n, nil
}

func (s *tcpSocket) WaitReadable(ctx context.Context) error {
	if dl, ok := deadlineFor(ctx); ok {
		_ = s.conn.SetReadDeadline(dl)
	}
	var probe [1]byte
	_, err := s.conn.Read(probe[:0])
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (s *tcpSocket) WaitWritable(ctx context.Context) error {
	if dl, ok := deadlineFor(ctx); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	return nil
}

func (s *tcpSocket) Close(opts CloseOpts) error {
	select {
	case s.once <- struct{}{}:
	default:
		return nil
	}
	close(s.closed)

	if opts.Mode == CloseReset {
		conn := s.conn
		if tc, ok := conn.(*tls.Conn); ok {
			conn = tc.NetConn() // closing the raw conn sends no close_notify
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		return conn.Close()
	}
	return s.conn.Close()
}

func (s *tcpSocket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrReset
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if se, ok := opErr.Err.(interface{ Error() string }); ok && isResetString(se.Error()) {
			return ErrReset
		}
	}
	if isEOF(err) {
		return ErrEOF
	}
	return err
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

func isResetString(s string) bool {
	return s == "connection reset by peer" || s == "broken pipe" ||
		len(s) >= 15 && s[len(s)-15:] == "connection reset"
}
