package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// Session is an established-or-establishing TLS session bound 1:1 to a
// connection's descriptor. Every failing call pushes its error onto the
// connection's queue; would-block results are returned but never queued.
type Session struct {
	ctx *Context
	raw net.Conn
	q   *errqueue.Queue

	rc  syscall.RawConn
	fc  *fdConn
	tls *tls.Conn

	established atomic.Bool
	freed       atomic.Bool
}

// SetFD binds the session to the descriptor of its raw connection.
func (s *Session) SetFD() {
	rc, err := rawConnOf(s.raw)
	if err != nil {
		s.q.Push(err)
		return
	}
	s.rc = rc
	s.fc = &fdConn{Conn: s.raw, rc: rc}
	if s.ctx.material.Server {
		s.tls = tls.Server(s.fc, s.ctx.config)
	} else {
		s.tls = tls.Client(s.fc, s.ctx.config)
	}
}

// Accept runs the handshake, bounded by timeout. On success the session
// switches to non-blocking reads.
func (s *Session) Accept(timeout time.Duration) {
	if s.tls == nil {
		s.q.Push(errors.New("session not bound to a descriptor"))
		return
	}
	if timeout > 0 {
		_ = s.raw.SetDeadline(time.Now().Add(timeout))
	}
	err := s.tls.Handshake()
	_ = s.raw.SetDeadline(time.Time{})
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrHandshakeTimeout, timeout)
		}
		s.q.Push(err)
		return
	}
	s.fc.nonblock = true
	s.established.Store(true)
}

// Established reports whether the handshake completed.
func (s *Session) Established() bool {
	return s.established.Load()
}

// Read reads decrypted application data without blocking. It returns
// errqueue.ErrWouldBlock when nothing is available and io.EOF once the peer
// has sent close-notify or closed the socket.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.tls.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	case errqueue.IsWouldBlock(err):
		return n, errqueue.ErrWouldBlock
	default:
		s.q.Push(err)
		return n, err
	}
}

// Write encrypts and writes p as one or more records.
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.tls.Write(p)
	if err != nil {
		s.q.Push(err)
	}
	return n, err
}

// WaitReadable waits up to timeout for the descriptor to become readable.
// A timeout is not an error.
func (s *Session) WaitReadable(timeout time.Duration) error {
	_, err := pollFd(s.rc, unix.POLLIN, timeout)
	return err
}

// WaitWritable blocks until the descriptor is writable.
func (s *Session) WaitWritable() error {
	return waitWritable(s.rc)
}

// ConnectionState returns the TLS state of an established session.
func (s *Session) ConnectionState() tls.ConnectionState {
	return s.tls.ConnectionState()
}

// Free sends close-notify and releases the session. It does not close the
// descriptor. A peer that already went away is not an error.
func (s *Session) Free() {
	if s.freed.Swap(true) {
		return
	}
	s.ctx.sessionsFreed.Add(1)

	if !s.established.Load() {
		return
	}
	if err := s.tls.CloseWrite(); err != nil && !peerGone(err) {
		s.q.Push(err)
	}
}

func peerGone(err error) bool {
	return errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.EOF)
}
