package transport

import (
	"errors"
	"fmt"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// Sentinel errors. Typed errors below wrap them for errors.Is.
var (
	ErrConfig           = errors.New("invalid TLS configuration")
	ErrBind             = errors.New("bind failed")
	ErrNotAccepted      = errors.New("refusing to initialize a session on a non-accepted connection")
	ErrUnsupportedSeek  = errors.New("unsupported seek")
	ErrShortBuffer      = errors.New("buffer too small for requested read")
	ErrWriteFailed      = errors.New("write failed")
	ErrClosed           = errors.New("connection closed")
	ErrListenerClosed   = errors.New("listener closed")
	ErrNotBound         = errors.New("listener not bound")
	ErrContextFreed     = errors.New("TLS context already freed")
	ErrHandshakeTimeout = errors.New("TLS handshake timeout")

	// ErrWouldBlock is returned by TryAccept when no connection is pending.
	ErrWouldBlock = errqueue.ErrWouldBlock
)

// ConfigError reports missing or malformed TLS material. It is returned
// before any socket is opened.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// BindError reports an OS-level failure to bind, listen on, or adopt a
// listening socket.
type BindError struct {
	Host string
	Port string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s on %s:%s: %v", ErrBind, e.Host, e.Port, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBind, e.Err}
}

// MisuseError reports a call the connection cannot honor in its current
// role or state. It indicates a programming error in the caller.
type MisuseError struct {
	Op  string
	Err error
}

func (e *MisuseError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *MisuseError) Unwrap() error {
	return e.Err
}
