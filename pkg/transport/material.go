package transport

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// Material keys as they appear in host configuration.
const (
	KeyServer           = "tls_server"
	KeyUseCert          = "tls_use_cert"
	KeyVerifyMode       = "tls_verify_mode"
	KeyKeyFile          = "tls_key_file"
	KeyCertFile         = "tls_cert_file"
	KeyCAPath           = "tls_ca_path"
	KeyCAFile           = "tls_ca_file"
	KeyCipherList       = "tls_cipher_list"
	KeyPasswordCallback = "tls_password_callback"
	KeyMaxGetlineLength = "tls_max_getline_length"
	KeyErrorCallback    = "tls_error_callback"
	KeyHandshakeTimeout = "tls_handshake_timeout"
	KeyReadMode         = "tls_read_mode"
)

// MaterialKeys lists every key ResolveMaterial consults, in resolution order.
var MaterialKeys = []string{
	KeyServer,
	KeyUseCert,
	KeyVerifyMode,
	KeyKeyFile,
	KeyCertFile,
	KeyCAPath,
	KeyCAFile,
	KeyCipherList,
	KeyPasswordCallback,
	KeyMaxGetlineLength,
	KeyErrorCallback,
	KeyHandshakeTimeout,
	KeyReadMode,
}

// DefaultHandshakeTimeout bounds the server handshake run on first I/O.
const DefaultHandshakeTimeout = 30 * time.Second

// ErrorCallback observes every non-empty drain of a connection's error queue.
// c is nil for drains that happen outside a connection (context construction,
// listener close). The callback cannot change the outcome.
type ErrorCallback func(c *Conn, op string, errs []errqueue.Entry, fatal bool)

// PasswordCallback returns the passphrase of an encrypted private key.
type PasswordCallback func() ([]byte, error)

// VerifyMode selects client certificate verification. Values combine as
// flags.
type VerifyMode uint8

const (
	VerifyNone             VerifyMode = 0
	VerifyPeer             VerifyMode = 1 << 0
	VerifyFailIfNoPeerCert VerifyMode = 1 << 1
	VerifyClientOnce       VerifyMode = 1 << 2
)

var verifyNames = []struct {
	mode VerifyMode
	name string
}{
	{VerifyPeer, "peer"},
	{VerifyFailIfNoPeerCert, "fail_if_no_peer_cert"},
	{VerifyClientOnce, "client_once"},
}

// String returns the flags joined by '|', or "none".
func (v VerifyMode) String() string {
	if v == VerifyNone {
		return "none"
	}
	var parts []string
	for _, n := range verifyNames {
		if v&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseVerifyMode parses "none", a '|' or ',' separated list of flag names,
// or a decimal flag value.
func ParseVerifyMode(s string) (VerifyMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return VerifyNone, nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return VerifyMode(n), nil
	}

	var v VerifyMode
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range verifyNames {
			if part == n.name {
				v |= n.mode
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown verify flag %q", part)
		}
	}
	return v, nil
}

// clientAuth maps the flags to crypto/tls. crypto/tls verifies a client
// certificate once per handshake, so VerifyClientOnce needs no mapping.
func (v VerifyMode) clientAuth() tls.ClientAuthType {
	switch {
	case v&VerifyPeer == 0:
		return tls.NoClientCert
	case v&VerifyFailIfNoPeerCert != 0:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.VerifyClientCertIfGiven
	}
}

// ReadMode selects how the stream engine waits when a refill finds no data.
type ReadMode uint8

const (
	// ReadReadiness attempts a read first and, on would-block, waits for the
	// descriptor to become readable.
	ReadReadiness ReadMode = iota

	// ReadBusy retries reads, pacing attempts with exponential backoff.
	ReadBusy
)

// String returns the configuration name of the mode.
func (m ReadMode) String() string {
	switch m {
	case ReadReadiness:
		return "readiness"
	case ReadBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ParseReadMode parses "readiness" or "busy".
func ParseReadMode(s string) (ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "readiness":
		return ReadReadiness, nil
	case "busy":
		return ReadBusy, nil
	default:
		return 0, fmt.Errorf("unknown read mode %q", s)
	}
}

// Material is the TLS configuration of a listener. It is shared by pointer
// with every connection the listener accepts and never changes after
// construction.
type Material struct {
	KeyFile          string
	CertFile         string
	CipherList       string
	VerifyMode       VerifyMode
	CAPath           string
	CAFile           string
	PasswordCallback PasswordCallback

	// MaxGetlineLength caps ReadLine. Zero means unbounded.
	MaxGetlineLength int

	ErrorCallback ErrorCallback

	// UseCert loads KeyFile and CertFile into the context. The files are
	// required either way.
	UseCert bool

	// Server selects the server handshake. When false, sessions run the
	// client handshake over the accepted socket.
	Server bool

	HandshakeTimeout time.Duration
	ReadMode         ReadMode
}

// DefaultMaterial returns Material with every default applied and no files.
func DefaultMaterial() *Material {
	return &Material{
		UseCert:          true,
		Server:           true,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadMode:         ReadReadiness,
	}
}

// Validate checks the required keys.
func (m *Material) Validate() error {
	if m.KeyFile == "" {
		return &ConfigError{Key: KeyKeyFile, Reason: "required"}
	}
	if m.CertFile == "" {
		return &ConfigError{Key: KeyCertFile, Reason: "required"}
	}
	if m.MaxGetlineLength < 0 {
		return &ConfigError{Key: KeyMaxGetlineLength, Reason: "must not be negative"}
	}
	return nil
}

// Lookup resolves a material key that neither the request nor the server
// overrides set.
type Lookup interface {
	Lookup(key string) (any, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(key string) (any, bool)

// Lookup calls f.
func (f LookupFunc) Lookup(key string) (any, bool) {
	return f(key)
}

// Overrides maps material keys to values. Values are either the field's Go
// type or a string in configuration syntax.
type Overrides map[string]any

// ResolveMaterial builds Material key by key, taking each value from the
// first source that has it: perListener, then server, then lookup. A nil
// value counts as unset.
func ResolveMaterial(perListener, server Overrides, lookup Lookup) (*Material, error) {
	m := DefaultMaterial()
	for _, key := range MaterialKeys {
		v := perListener[key]
		if v == nil {
			v = server[key]
		}
		if v == nil && lookup != nil {
			v, _ = lookup.Lookup(key)
		}
		if v == nil {
			continue
		}
		if err := m.set(key, v); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Material) set(key string, v any) error {
	var err error
	switch key {
	case KeyServer:
		m.Server, err = asBool(v)
	case KeyUseCert:
		m.UseCert, err = asBool(v)
	case KeyVerifyMode:
		switch t := v.(type) {
		case VerifyMode:
			m.VerifyMode = t
		case int:
			m.VerifyMode = VerifyMode(t)
		case string:
			m.VerifyMode, err = ParseVerifyMode(t)
		default:
			err = fmt.Errorf("unexpected type %T", v)
		}
	case KeyKeyFile:
		m.KeyFile, err = asString(v)
	case KeyCertFile:
		m.CertFile, err = asString(v)
	case KeyCAPath:
		m.CAPath, err = asString(v)
	case KeyCAFile:
		m.CAFile, err = asString(v)
	case KeyCipherList:
		m.CipherList, err = asString(v)
	case KeyPasswordCallback:
		switch t := v.(type) {
		case PasswordCallback:
			m.PasswordCallback = t
		case func() ([]byte, error):
			m.PasswordCallback = t
		default:
			err = fmt.Errorf("unexpected type %T", v)
		}
	case KeyMaxGetlineLength:
		m.MaxGetlineLength, err = asInt(v)
	case KeyErrorCallback:
		switch t := v.(type) {
		case ErrorCallback:
			m.ErrorCallback = t
		case func(*Conn, string, []errqueue.Entry, bool):
			m.ErrorCallback = t
		default:
			err = fmt.Errorf("unexpected type %T", v)
		}
	case KeyHandshakeTimeout:
		switch t := v.(type) {
		case time.Duration:
			m.HandshakeTimeout = t
		case string:
			m.HandshakeTimeout, err = time.ParseDuration(t)
		default:
			err = fmt.Errorf("unexpected type %T", v)
		}
	case KeyReadMode:
		switch t := v.(type) {
		case ReadMode:
			m.ReadMode = t
		case string:
			m.ReadMode, err = ParseReadMode(t)
		default:
			err = fmt.Errorf("unexpected type %T", v)
		}
	default:
		err = fmt.Errorf("unknown key")
	}
	if err != nil {
		return &ConfigError{Key: key, Reason: err.Error()}
	}
	return nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	default:
		return false, fmt.Errorf("expected bool, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
