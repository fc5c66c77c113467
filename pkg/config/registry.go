package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tlsock/tlsock-go/pkg/transport"
)

// ErrUnknownFunction is returned when a function-valued key names nothing
// registered.
var ErrUnknownFunction = errors.New("unknown function")

// Registry maps the names used in configuration to host callbacks.
type Registry struct {
	mu        sync.RWMutex
	passwords map[string]transport.PasswordCallback
	errors    map[string]transport.ErrorCallback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		passwords: make(map[string]transport.PasswordCallback),
		errors:    make(map[string]transport.ErrorCallback),
	}
}

// RegisterPassword registers a password callback under name.
func (r *Registry) RegisterPassword(name string, fn transport.PasswordCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passwords[name] = fn
}

// RegisterErrorCallback registers an error callback under name.
func (r *Registry) RegisterErrorCallback(name string, fn transport.ErrorCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[name] = fn
}

func (r *Registry) password(name string) (transport.PasswordCallback, error) {
	if r != nil {
		r.mu.RLock()
		fn, ok := r.passwords[name]
		r.mu.RUnlock()
		if ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s=%q", ErrUnknownFunction, transport.KeyPasswordCallback, name)
}

func (r *Registry) errorCallback(name string) (transport.ErrorCallback, error) {
	if r != nil {
		r.mu.RLock()
		fn, ok := r.errors[name]
		r.mu.RUnlock()
		if ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s=%q", ErrUnknownFunction, transport.KeyErrorCallback, name)
}

// EnvPassword returns a password callback reading the passphrase from the
// environment variable name.
func EnvPassword(name string) transport.PasswordCallback {
	return func() ([]byte, error) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil, fmt.Errorf("environment variable %s not set", name)
		}
		return []byte(v), nil
	}
}

// EnvPrefix is prepended to upper-cased material keys by Resolver, so
// tls_key_file is read from TLSOCK_TLS_KEY_FILE.
const EnvPrefix = "TLSOCK_"

// Resolver is the last link of the material resolution chain. It reads
// keys from the environment and resolves function names through a Registry.
type Resolver struct {
	reg *Registry
	env func(string) (string, bool)
}

// NewResolver creates a resolver over the process environment.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg, env: os.LookupEnv}
}

// Lookup implements transport.Lookup.
func (r *Resolver) Lookup(key string) (any, bool) {
	v, ok := r.env(EnvPrefix + strings.ToUpper(key))
	if !ok || v == "" {
		return nil, false
	}
	switch key {
	case transport.KeyPasswordCallback:
		fn, err := r.reg.password(v)
		if err != nil {
			return nil, false
		}
		return fn, true
	case transport.KeyErrorCallback:
		fn, err := r.reg.errorCallback(v)
		if err != nil {
			return nil, false
		}
		return fn, true
	}
	return v, true
}

var _ transport.Lookup = (*Resolver)(nil)
