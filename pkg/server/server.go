package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tlsock/tlsock-go/pkg/discovery"
	"github.com/tlsock/tlsock-go/pkg/log"
	"github.com/tlsock/tlsock-go/pkg/retry"
	"github.com/tlsock/tlsock-go/pkg/transport"
)

// Server hosts the listeners of one host configuration.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	listeners []*transport.Listener
	plog      *log.FileLogger
	announcer *discovery.Announcer

	ctx    context.Context
	cancel context.CancelFunc

	conns  *connTracker
	wg     sync.WaitGroup // accept loops, handlers, reaper
	loops  sync.WaitGroup // accept loops only
	fatal  chan error
}

// New validates opts and creates a stopped server.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: logger,
		conns:  newConnTracker(),
		fatal:  make(chan error, 16),
	}, nil
}

// Fatal implements transport.Host. Reports are logged and queued on the
// Errors channel; they are dropped when the channel is full.
func (s *Server) Fatal(op string, err error) {
	s.logger.Error("listener failure", slog.String("op", op), slog.Any("error", err))
	select {
	case s.fatal <- &FatalError{Op: op, Err: err}:
	default:
	}
}

// Errors returns the channel of fatal listener reports.
func (s *Server) Errors() <-chan error {
	return s.fatal
}

// Start constructs and binds every configured listener, announces them
// when mDNS is enabled and starts the accept loops.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	listeners, plog, err := s.open()
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	var announcer *discovery.Announcer
	if mdns := s.opts.Config.Server.MDNS; mdns.Enabled {
		announcer = s.announce(listeners)
	}

	s.mu.Lock()
	s.listeners = listeners
	s.plog = plog
	s.announcer = announcer
	s.state = StateRunning
	s.mu.Unlock()

	for _, l := range listeners {
		s.wg.Add(1)
		s.loops.Add(1)
		go s.acceptLoop(l)
	}
	if s.opts.ConnTimeout > 0 {
		s.wg.Add(1)
		go s.runReaper()
	}
	return nil
}

// open constructs the listeners and binds or reconnects them. On failure
// everything opened so far is closed.
func (s *Server) open() ([]*transport.Listener, *log.FileLogger, error) {
	cfg := s.opts.Config
	host, err := cfg.HostConfig(s.opts.Registry)
	if err != nil {
		return nil, nil, err
	}
	host.Logger = s.logger

	var plog *log.FileLogger
	if cfg.Server.ProtocolLog != "" {
		plog, err = log.NewFileLogger(cfg.Server.ProtocolLog)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		host.ProtocolLogger = plog
	}

	reqs, err := cfg.Requests(s.opts.Registry)
	if err != nil {
		closeLog(plog)
		return nil, nil, err
	}

	var listeners []*transport.Listener
	fail := func(err error) ([]*transport.Listener, *log.FileLogger, error) {
		for _, l := range listeners {
			_ = l.Close()
		}
		closeLog(plog)
		return nil, nil, err
	}

	for i, req := range reqs {
		ls, err := transport.Construct(req, host)
		if err != nil {
			return fail(fmt.Errorf("listeners[%d]: %w", i, err))
		}
		listeners = append(listeners, ls...)
	}

	inherited := s.opts.Inherited
	if inherited == nil {
		inherited, err = ListenFDs()
		if err != nil {
			return fail(err)
		}
	}
	if len(inherited) > 0 && len(inherited) != len(listeners) {
		return fail(fmt.Errorf("%w: %d descriptors for %d listeners", ErrInherited, len(inherited), len(listeners)))
	}

	for i, l := range listeners {
		if len(inherited) > 0 {
			err = l.Reconnect(inherited[i], s)
		} else {
			err = l.Bind(s)
		}
		if err != nil {
			return fail(err)
		}
		l.LogConnect(l.Config().Host)
	}
	return listeners, plog, nil
}

func (s *Server) announce(listeners []*transport.Listener) *discovery.Announcer {
	mdns := s.opts.Config.Server.MDNS
	adv := s.opts.Advertiser
	if adv == nil {
		mdnsAdv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			s.logger.Warn("mdns disabled", slog.Any("error", err))
			return nil
		}
		adv = mdnsAdv
	}

	a := discovery.NewAnnouncer(adv, discovery.AnnouncerConfig{
		Instance: mdns.Instance,
		Service:  mdns.Service,
		Domain:   mdns.Domain,
		Logger:   s.logger,
	})
	for _, l := range listeners {
		if err := a.Announce(s.ctx, l); err != nil {
			s.logger.Warn("announce failed",
				slog.String("listener", l.ID()),
				slog.Any("error", err),
			)
		}
	}
	return a
}

// acceptLoop accepts connections until the listener closes. Transient
// accept failures are paced with backoff.
func (s *Server) acceptLoop(l *transport.Listener) {
	defer s.wg.Done()
	defer s.loops.Done()

	pace := retry.New(retry.AcceptPacing)
	for {
		c, err := l.Accept()
		if err != nil {
			if errors.Is(err, transport.ErrListenerClosed) || s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed",
				slog.String("listener", l.ID()),
				slog.Any("error", err),
			)
			if pace.Wait(s.ctx) != nil {
				return
			}
			continue
		}
		pace.Reset()

		if !s.conns.TryAdd(c, s.opts.MaxConns) {
			s.logger.Warn("connection limit reached",
				slog.String("remote", c.RemoteAddr().String()),
				slog.Int("limit", s.opts.MaxConns),
			)
			_ = c.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) serve(c *transport.Conn) {
	defer s.wg.Done()
	defer s.conns.Remove(c)
	defer c.Close()

	s.opts.Handler(s.ctx, c)
}

func (s *Server) runReaper() {
	defer s.wg.Done()

	interval := s.opts.ConnTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.conns.CloseStale(s.opts.ConnTimeout); n > 0 {
				s.logger.Info("closed stale connections", slog.Int("count", n))
			}
		}
	}
}

// Shutdown stops accepting, withdraws announcements and waits for the
// handlers to return. When ctx ends first the remaining connections are
// closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.stopAccepting(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.cancel()
		s.conns.CloseAll()
		<-done
	}
	s.finish()
	return err
}

// Stop closes the listeners and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	if err := s.stopAccepting(); err != nil {
		return err
	}
	s.cancel()
	s.conns.CloseAll()
	s.wg.Wait()
	s.finish()
	return nil
}

func (s *Server) stopAccepting() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	listeners, announcer := s.listeners, s.announcer
	s.mu.Unlock()

	if announcer != nil {
		announcer.Close()
	}
	for _, l := range listeners {
		if err := l.Close(); err != nil {
			s.logger.Warn("listener close", slog.String("listener", l.ID()), slog.Any("error", err))
		}
	}
	s.loops.Wait()
	return nil
}

func (s *Server) finish() {
	s.cancel()

	s.mu.Lock()
	plog := s.plog
	s.plog = nil
	s.listeners = nil
	s.announcer = nil
	s.state = StateStopped
	s.mu.Unlock()

	closeLog(plog)
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// State returns the server state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Listeners returns the listeners of the running server in configuration
// order.
func (s *Server) Listeners() []*transport.Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*transport.Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// ActiveConns returns the number of connections being served.
func (s *Server) ActiveConns() int {
	return s.conns.Len()
}

func closeLog(l *log.FileLogger) {
	if l != nil {
		_ = l.Close()
	}
}

var _ transport.Host = (*Server)(nil)
