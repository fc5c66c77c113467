package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/log"
	"github.com/tlsock/tlsock-go/pkg/retry"
)

// ConnState is the lifecycle state of an accepted connection.
type ConnState int

const (
	// StateAccepted indicates a connection without a TLS session yet.
	StateAccepted ConnState = iota

	// StateEstablished indicates a completed handshake.
	StateEstablished

	// StateClosed indicates Close was called.
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// readinessWait bounds one readability wait in ReadReadiness mode.
const readinessWait = 50 * time.Millisecond

// Conn is one accepted connection. The TLS session is created and the
// handshake run on the first stream operation. A Conn must be driven by a
// single goroutine; Close may also be called from another goroutine to
// interrupt it.
type Conn struct {
	id       string
	raw      net.Conn
	host     string
	port     string
	family   AddressFamily
	protocol string

	ctx      *Context
	material *Material
	accepted bool
	errs     *errqueue.Adapter

	session *Session
	io      binding

	buf    []byte
	pos    int64
	eof    bool
	pacing *retry.Backoff

	plog         log.Logger
	captureLimit int

	mu        sync.Mutex
	state     ConnState
	closeErr  error
	closeOnce sync.Once
}

func newConn(l *Listener, raw net.Conn) *Conn {
	c := &Conn{
		id:           uuid.New().String(),
		raw:          raw,
		host:         l.cfg.Host,
		port:         l.cfg.Port,
		family:       l.cfg.Family,
		protocol:     l.cfg.Protocol,
		ctx:          l.ctx,
		material:     l.material,
		accepted:     true,
		plog:         l.plog,
		captureLimit: l.captureLimit,
		state:        StateAccepted,
	}
	c.errs = errqueue.NewAdapter(nil, c.observe)
	if c.material.ReadMode == ReadBusy {
		c.pacing = retry.New(retry.ReadPacing)
	}
	return c
}

// Wrap returns a Conn over a socket that did not come from a Listener's
// accept, such as the listening side of a plaintext framework socket. Its
// stream operations fail with ErrNotAccepted.
func Wrap(raw net.Conn, protocol string) *Conn {
	c := &Conn{
		id:       uuid.New().String(),
		raw:      raw,
		protocol: protocol,
		material: DefaultMaterial(),
		state:    StateAccepted,
	}
	c.errs = errqueue.NewAdapter(nil, c.observe)
	return c
}

// observe forwards a drain to the error callback and the protocol log.
func (c *Conn) observe(op string, entries []errqueue.Entry, fatal bool) {
	if cb := c.material.ErrorCallback; cb != nil {
		cb(c, op, entries, fatal)
	}
	c.logEvent(log.Event{
		Layer:    log.LayerTLS,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTLS,
			Op:      op,
			Message: fmt.Sprintf("%d error(s) drained", len(entries)),
			Entries: entries,
			Fatal:   fatal,
		},
	})
}

// ensureSession creates the session and runs the handshake on first use.
func (c *Conn) ensureSession() error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	if c.io != nil {
		return nil
	}
	if !c.accepted {
		return &MisuseError{Op: "ssl_init", Err: ErrNotAccepted}
	}

	q := c.errs.Queue()

	rc, err := rawConnOf(c.raw)
	if err == nil {
		err = setNonblock(rc)
	}
	if err != nil {
		q.Push(err)
	}
	if err := c.errs.DrainFatal("set_nonblock"); err != nil {
		return err
	}

	s := c.ctx.NewSession(c.raw, q)
	if err := c.errs.DrainFatal("ssl_new"); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	s.SetFD()
	if err := c.errs.DrainFatal("set_fd"); err != nil {
		return err
	}

	s.Accept(c.material.HandshakeTimeout)
	if err := c.errs.DrainFatal("ssl_accept"); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateEstablished
	c.mu.Unlock()
	c.io = s

	c.logState(log.StateEntitySession, StateAccepted.String(), StateEstablished.String(), tls.VersionName(s.ConnectionState().Version))
	return nil
}

// Close frees the session when one was established, then closes the
// descriptor. The shared context is never freed here. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		old := c.state
		s := c.session
		c.state = StateClosed
		c.mu.Unlock()

		if c.accepted && s != nil && s.Established() {
			s.Free()
			c.closeErr = c.errs.DrainFatal("ssl_free")
		}
		if err := c.raw.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}

		c.logState(log.StateEntityConnection, old.String(), StateClosed.String(), "")
	})
	return c.closeErr
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// State returns the lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TLSState returns the TLS connection state once the session is established.
func (c *Conn) TLSState() (tls.ConnectionState, bool) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil || !s.Established() {
		return tls.ConnectionState{}, false
	}
	return s.ConnectionState(), true
}

// Accepted reports whether the connection came from a listener's accept.
func (c *Conn) Accepted() bool {
	return c.accepted
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// Host returns the host the listener was configured with.
func (c *Conn) Host() string {
	return c.host
}

// Port returns the listener's resolved port.
func (c *Conn) Port() string {
	return c.port
}

// Family returns the listener's address family.
func (c *Conn) Family() AddressFamily {
	return c.family
}

// Protocol returns the protocol name the host serves on the listener.
func (c *Conn) Protocol() string {
	return c.protocol
}

// Buffered returns the number of bytes read from the peer but not yet
// consumed.
func (c *Conn) Buffered() int {
	return len(c.buf)
}

func (c *Conn) logEvent(e log.Event) {
	if c.plog == nil {
		return
	}
	e.Timestamp = time.Now()
	e.ConnectionID = c.id
	e.Protocol = c.protocol
	if a := c.raw.LocalAddr(); a != nil {
		e.LocalAddr = a.String()
	}
	if a := c.raw.RemoteAddr(); a != nil {
		e.RemoteAddr = a.String()
	}
	c.plog.Log(e)
}

func (c *Conn) logState(entity log.StateEntity, oldState, newState, reason string) {
	layer := log.LayerSocket
	if entity == log.StateEntitySession {
		layer = log.LayerTLS
	}
	c.logEvent(log.Event{
		Layer:    layer,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Conn) logIO(dir log.Direction, op string, data []byte, status Status) {
	if c.plog == nil {
		return
	}
	ev := &log.IOEvent{Op: op, Size: len(data), Status: uint8(status)}
	if c.captureLimit > 0 && len(data) > 0 {
		n := min(len(data), c.captureLimit)
		ev.Data = append([]byte(nil), data[:n]...)
		ev.Truncated = n < len(data)
	}
	c.logEvent(log.Event{
		Direction: dir,
		Layer:     log.LayerStream,
		Category:  log.CategoryIO,
		IO:        ev,
	})
}
