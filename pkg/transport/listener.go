package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/log"
)

// AddressFamily selects the socket family of a listener.
type AddressFamily uint8

const (
	// FamilyIPv4 listens on an AF_INET socket.
	FamilyIPv4 AddressFamily = iota

	// FamilyIPv6 listens on a dual-stack AF_INET6 socket.
	FamilyIPv6

	// FamilyBoth produces two listeners: AF_INET and an IPv6-only AF_INET6.
	FamilyBoth
)

// String returns the family name.
func (f AddressFamily) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	case FamilyBoth:
		return "IPv4+IPv6"
	default:
		return "unknown"
	}
}

// ListenerState is the lifecycle state of a listener.
type ListenerState int

const (
	ListenerConfigured ListenerState = iota
	ListenerBound
	ListenerAccepting
	ListenerClosed
)

// String returns the state name.
func (s ListenerState) String() string {
	switch s {
	case ListenerConfigured:
		return "CONFIGURED"
	case ListenerBound:
		return "BOUND"
	case ListenerAccepting:
		return "ACCEPTING"
	case ListenerClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ListenerConfig is the resolved socket configuration of one listener.
// It does not change after Bind.
type ListenerConfig struct {
	Host     string
	Port     string
	Backlog  int
	Family   AddressFamily
	V6Only   bool
	Protocol string
}

// ConnectRequest asks the lifecycle manager for a listener. Zero fields fall
// back to the HostConfig defaults.
type ConnectRequest struct {
	Host     string
	Port     string
	Backlog  int
	Family   AddressFamily
	Protocol string

	// TLS holds per-listener material overrides.
	TLS Overrides
}

// HostConfig carries the server-wide defaults and sinks of the host
// framework.
type HostConfig struct {
	Host    string
	Port    string
	Backlog int

	// TLS holds server-wide material overrides.
	TLS Overrides

	// Lookup resolves material keys neither override map sets.
	Lookup Lookup

	Logger         *slog.Logger
	ProtocolLogger log.Logger

	// CaptureLimit is the number of leading bytes of each read or write
	// copied into protocol log events. Zero disables capture.
	CaptureLimit int
}

// Host is the host framework's fatal-error channel.
type Host interface {
	Fatal(op string, err error)
}

// HostFunc adapts a function to Host.
type HostFunc func(op string, err error)

// Fatal calls f.
func (f HostFunc) Fatal(op string, err error) {
	f(op, err)
}

// Listener is a bound TLS listening socket. It owns the Context shared by
// every connection it accepts.
type Listener struct {
	id       string
	cfg      ListenerConfig
	material *Material
	ctx      *Context
	errs     *errqueue.Adapter
	ln       *net.TCPListener

	logger       *slog.Logger
	plog         log.Logger
	captureLimit int

	mu    sync.Mutex
	state ListenerState
}

// Construct resolves a request against the host defaults and returns the
// unbound listeners it describes: one, or two for FamilyBoth. TLS material
// is resolved and validated here, so a missing key or certificate file fails
// before any socket exists.
func Construct(req ConnectRequest, host HostConfig) ([]*Listener, error) {
	cfg := ListenerConfig{
		Host:     req.Host,
		Port:     req.Port,
		Backlog:  req.Backlog,
		Family:   req.Family,
		Protocol: req.Protocol,
	}
	if cfg.Host == "" {
		cfg.Host = host.Host
	}
	if cfg.Port == "" {
		cfg.Port = host.Port
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = host.Backlog
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = unix.SOMAXCONN
	}

	material, err := ResolveMaterial(req.TLS, host.TLS, host.Lookup)
	if err != nil {
		return nil, err
	}

	logger := host.Logger
	if logger == nil {
		logger = slog.Default()
	}

	build := func(c ListenerConfig) *Listener {
		l := &Listener{
			id:           uuid.New().String(),
			cfg:          c,
			material:     material,
			logger:       logger,
			plog:         host.ProtocolLogger,
			captureLimit: host.CaptureLimit,
			state:        ListenerConfigured,
		}
		l.errs = errqueue.NewAdapter(nil, l.observe)
		return l
	}

	if cfg.Family != FamilyBoth {
		return []*Listener{build(cfg)}, nil
	}
	v4, v6 := cfg, cfg
	v4.Family = FamilyIPv4
	v6.Family = FamilyIPv6
	v6.V6Only = true
	if v4.Host == "::" || v4.Host == "[::]" {
		v4.Host = "*"
	}
	return []*Listener{build(v4), build(v6)}, nil
}

func (l *Listener) observe(op string, entries []errqueue.Entry, fatal bool) {
	if cb := l.material.ErrorCallback; cb != nil {
		cb(nil, op, entries, fatal)
	}
	l.logEvent(log.Event{
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

// Bind opens, binds and listens on the configured address with address
// reuse, records the port actually bound, and builds the Context. Failures
// are reported to h.Fatal and returned.
func (l *Listener) Bind(h Host) error {
	if err := l.requireState(ListenerConfigured, "bind"); err != nil {
		return err
	}
	ln, err := listenTCP(l.cfg)
	if err != nil {
		return l.fail(h, "bind", err)
	}
	return l.attach(h, ln, "bound")
}

// Reconnect adopts a listening descriptor inherited across a process
// restart and rebuilds the Context. Failures are reported to h.Fatal and
// returned.
func (l *Listener) Reconnect(fd uintptr, h Host) error {
	if err := l.requireState(ListenerConfigured, "reconnect"); err != nil {
		return err
	}
	f := os.NewFile(fd, "tlsock-inherited")
	if f == nil {
		return l.fail(h, "reconnect", fmt.Errorf("invalid descriptor %d", fd))
	}
	ln, err := fileListener(f)
	f.Close()
	if err != nil {
		return l.fail(h, "reconnect", err)
	}
	return l.attach(h, ln, "reconnected")
}

func (l *Listener) attach(h Host, ln *net.TCPListener, reason string) error {
	if a, ok := ln.Addr().(*net.TCPAddr); ok {
		l.cfg.Port = strconv.Itoa(a.Port)
	}

	ctx, err := newContext(l.material, l.errs)
	if err != nil {
		ln.Close()
		if h != nil {
			h.Fatal("ctx_new", err)
		}
		return err
	}

	l.mu.Lock()
	l.ln = ln
	l.ctx = ctx
	l.state = ListenerBound
	l.mu.Unlock()

	l.logState(ListenerConfigured, ListenerBound, reason)
	return nil
}

func (l *Listener) requireState(want ListenerState, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != want {
		return &MisuseError{Op: op, Err: fmt.Errorf("listener is %s", l.state)}
	}
	return nil
}

func (l *Listener) fail(h Host, op string, err error) error {
	be := &BindError{Host: l.cfg.Host, Port: l.cfg.Port, Err: err}
	if h != nil {
		h.Fatal(op, be)
	}
	return be
}

// Accept waits for the next connection. No handshake happens here; it is
// deferred to the connection's first stream operation.
func (l *Listener) Accept() (*Conn, error) {
	ln, err := l.listener()
	if err != nil {
		return nil, err
	}
	raw, err := ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
	return l.wrap(raw), nil
}

// TryAccept accepts a pending connection without waiting. It returns
// ErrWouldBlock when none is pending.
func (l *Listener) TryAccept() (*Conn, error) {
	ln, err := l.listener()
	if err != nil {
		return nil, err
	}
	raw, err := acceptNonblock(ln)
	if err != nil {
		return nil, err
	}
	return l.wrap(raw), nil
}

func (l *Listener) listener() (*net.TCPListener, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case ListenerConfigured:
		return nil, ErrNotBound
	case ListenerClosed:
		return nil, ErrListenerClosed
	}
	return l.ln, nil
}

func (l *Listener) wrap(raw net.Conn) *Conn {
	l.mu.Lock()
	first := l.state == ListenerBound
	if first {
		l.state = ListenerAccepting
	}
	l.mu.Unlock()
	if first {
		l.logState(ListenerBound, ListenerAccepting, "")
	}

	c := newConn(l, raw)
	c.logState(log.StateEntityConnection, "", StateAccepted.String(), "")
	return c
}

// Close frees the shared Context exactly once, then closes the listening
// descriptor. Connections already accepted stay usable until they close.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.state == ListenerClosed {
		l.mu.Unlock()
		return nil
	}
	old := l.state
	l.state = ListenerClosed
	ctx, ln := l.ctx, l.ln
	l.mu.Unlock()

	if ctx != nil {
		ctx.Free()
	}
	err := l.errs.DrainFatal("ctx_free")
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	l.logState(old, ListenerClosed, "")
	return err
}

// LogConnect writes one informational line describing the listener.
func (l *Listener) LogConnect(host string) {
	l.logger.Info("listening",
		slog.String("protocol", l.cfg.Protocol),
		slog.String("host", host),
		slog.String("port", l.cfg.Port),
		slog.String("family", l.cfg.Family.String()),
	)
}

// File returns a duplicate of the listening descriptor for hand-off to a
// restarted process.
func (l *Listener) File() (*os.File, error) {
	ln, err := l.listener()
	if err != nil {
		return nil, err
	}
	return ln.File()
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// ID returns the listener's unique identifier.
func (l *Listener) ID() string {
	return l.id
}

// Config returns the listener configuration. Port holds the bound port after
// Bind or Reconnect.
func (l *Listener) Config() ListenerConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Material returns the resolved TLS material.
func (l *Listener) Material() *Material {
	return l.material
}

// Context returns the shared TLS context, or nil before Bind.
func (l *Listener) Context() *Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}

// State returns the lifecycle state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) logEvent(e log.Event) {
	if l.plog == nil {
		return
	}
	e.Timestamp = time.Now()
	e.ConnectionID = l.id
	e.Protocol = l.cfg.Protocol
	if a := l.Addr(); a != nil {
		e.LocalAddr = a.String()
	}
	l.plog.Log(e)
}

func (l *Listener) logState(oldState, newState ListenerState, reason string) {
	l.logEvent(log.Event{
		Layer:    log.LayerSocket,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}
