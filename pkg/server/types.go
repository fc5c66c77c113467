package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tlsock/tlsock-go/pkg/config"
	"github.com/tlsock/tlsock-go/pkg/discovery"
	"github.com/tlsock/tlsock-go/pkg/transport"
)

// Server errors.
var (
	ErrNotStarted     = errors.New("server not started")
	ErrAlreadyStarted = errors.New("server already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrInherited      = errors.New("inherited descriptors do not match listeners")
)

// State represents the server state.
type State uint8

const (
	// StateIdle - server created but not started.
	StateIdle State = iota

	// StateStarting - listeners are being bound.
	StateStarting

	// StateRunning - accept loops are running.
	StateRunning

	// StateStopping - listeners are closed and connections drain.
	StateStopping

	// StateStopped - server has stopped.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Handler serves one accepted connection. ctx is cancelled when the server
// stops. The connection is closed after Handler returns.
type Handler func(ctx context.Context, c *transport.Conn)

// Options configures a Server.
type Options struct {
	// Config is the host configuration. Required.
	Config *config.Config

	// Registry resolves tls_password_callback and tls_error_callback names.
	Registry *config.Registry

	// Handler serves accepted connections. Required.
	Handler Handler

	// Logger receives operational logs. Default: slog.Default().
	Logger *slog.Logger

	// Advertiser announces listeners when mdns is enabled in Config.
	// Default: an MDNSAdvertiser.
	Advertiser discovery.Advertiser

	// MaxConns caps concurrently served connections. Connections over the
	// cap are closed right after accept. 0 means no cap.
	MaxConns int

	// ConnTimeout closes connections that have been open longer than this.
	// 0 disables the reaper.
	ConnTimeout time.Duration

	// Inherited holds listening descriptors to reconnect instead of
	// binding. nil reads them from the environment.
	Inherited []uintptr
}

// FatalError is a listener failure reported through the host callback.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
