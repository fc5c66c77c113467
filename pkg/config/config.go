package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tlsock/tlsock-go/pkg/transport"
)

// Default values applied by Load.
const (
	DefaultHost        = "*"
	DefaultPort        = "4433"
	DefaultMDNSService = "_tlsock._tcp"
	DefaultMDNSDomain  = "local."
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the host configuration file.
type Config struct {
	Server    Server     `yaml:"server"`
	Listeners []Listener `yaml:"listeners"`
}

// Server holds the settings every listener inherits.
type Server struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Backlog int    `yaml:"listen_backlog"`

	// IPv6 makes listeners without an explicit family listen on both IPv4
	// and IPv6.
	IPv6 bool `yaml:"ipv6"`

	// ProtocolLog is the path of the CBOR protocol event log. Empty
	// disables it.
	ProtocolLog string `yaml:"protocol_log"`

	// CaptureLimit is how many bytes of each read or write the protocol log
	// keeps.
	CaptureLimit int `yaml:"protocol_log_capture"`

	MDNS MDNS `yaml:"mdns"`

	TLS `yaml:",inline"`
}

// MDNS configures service announcement of bound listeners.
type MDNS struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Domain   string `yaml:"domain"`
}

// Listener is one entry of the listeners section.
type Listener struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Backlog  int    `yaml:"listen_backlog"`

	// Family is "ipv4", "ipv6" or "both". Empty follows server.ipv6.
	Family string `yaml:"family"`

	TLS `yaml:",inline"`
}

// TLS holds the tls_* keys. Unset keys fall through to the next source.
type TLS struct {
	Server           *bool  `yaml:"tls_server,omitempty"`
	UseCert          *bool  `yaml:"tls_use_cert,omitempty"`
	VerifyMode       string `yaml:"tls_verify_mode,omitempty"`
	KeyFile          string `yaml:"tls_key_file,omitempty"`
	CertFile         string `yaml:"tls_cert_file,omitempty"`
	CAPath           string `yaml:"tls_ca_path,omitempty"`
	CAFile           string `yaml:"tls_ca_file,omitempty"`
	CipherList       string `yaml:"tls_cipher_list,omitempty"`
	PasswordCallback string `yaml:"tls_password_callback,omitempty"`
	MaxGetlineLength *int   `yaml:"tls_max_getline_length,omitempty"`
	ErrorCallback    string `yaml:"tls_error_callback,omitempty"`
	HandshakeTimeout string `yaml:"tls_handshake_timeout,omitempty"`
	ReadMode         string `yaml:"tls_read_mode,omitempty"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.MDNS.Service == "" {
		c.Server.MDNS.Service = DefaultMDNSService
	}
	if c.Server.MDNS.Domain == "" {
		c.Server.MDNS.Domain = DefaultMDNSDomain
	}
	if len(c.Listeners) == 0 {
		c.Listeners = []Listener{{}}
	}
	for i := range c.Listeners {
		if c.Listeners[i].Protocol == "" {
			c.Listeners[i].Protocol = "tls"
		}
	}
}

// Validate checks values that can be checked without touching the file
// system. Key and certificate files are checked when the listener is
// constructed.
func (c *Config) Validate() error {
	if c.Server.Backlog < 0 {
		return fmt.Errorf("%w: server.listen_backlog must not be negative", ErrInvalid)
	}
	if c.Server.CaptureLimit < 0 {
		return fmt.Errorf("%w: server.protocol_log_capture must not be negative", ErrInvalid)
	}
	if err := c.Server.TLS.validate("server"); err != nil {
		return err
	}
	for i, l := range c.Listeners {
		where := fmt.Sprintf("listeners[%d]", i)
		if l.Backlog < 0 {
			return fmt.Errorf("%w: %s.listen_backlog must not be negative", ErrInvalid, where)
		}
		if _, err := parseFamily(l.Family, false); err != nil {
			return fmt.Errorf("%w: %s.family: %v", ErrInvalid, where, err)
		}
		if err := l.TLS.validate(where); err != nil {
			return err
		}
	}
	return nil
}

func (t *TLS) validate(where string) error {
	if t.VerifyMode != "" {
		if _, err := transport.ParseVerifyMode(t.VerifyMode); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalid, where, transport.KeyVerifyMode, err)
		}
	}
	if t.ReadMode != "" {
		if _, err := transport.ParseReadMode(t.ReadMode); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalid, where, transport.KeyReadMode, err)
		}
	}
	if t.HandshakeTimeout != "" {
		d, err := time.ParseDuration(t.HandshakeTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s.%s: %q is not a positive duration", ErrInvalid, where, transport.KeyHandshakeTimeout, t.HandshakeTimeout)
		}
	}
	if t.MaxGetlineLength != nil && *t.MaxGetlineLength < 0 {
		return fmt.Errorf("%w: %s.%s must not be negative", ErrInvalid, where, transport.KeyMaxGetlineLength)
	}
	return nil
}

func parseFamily(s string, ipv6 bool) (transport.AddressFamily, error) {
	switch strings.ToLower(s) {
	case "":
		if ipv6 {
			return transport.FamilyBoth, nil
		}
		return transport.FamilyIPv4, nil
	case "ipv4", "inet":
		return transport.FamilyIPv4, nil
	case "ipv6", "inet6":
		return transport.FamilyIPv6, nil
	case "both", "dual":
		return transport.FamilyBoth, nil
	default:
		return 0, fmt.Errorf("unknown family %q", s)
	}
}

// Overrides converts the set keys to transport overrides, resolving
// function names through reg.
func (t *TLS) Overrides(reg *Registry) (transport.Overrides, error) {
	o := transport.Overrides{}
	if t.Server != nil {
		o[transport.KeyServer] = *t.Server
	}
	if t.UseCert != nil {
		o[transport.KeyUseCert] = *t.UseCert
	}
	if t.MaxGetlineLength != nil {
		o[transport.KeyMaxGetlineLength] = *t.MaxGetlineLength
	}
	for key, v := range map[string]string{
		transport.KeyVerifyMode:       t.VerifyMode,
		transport.KeyKeyFile:          t.KeyFile,
		transport.KeyCertFile:         t.CertFile,
		transport.KeyCAPath:           t.CAPath,
		transport.KeyCAFile:           t.CAFile,
		transport.KeyCipherList:       t.CipherList,
		transport.KeyHandshakeTimeout: t.HandshakeTimeout,
		transport.KeyReadMode:         t.ReadMode,
	} {
		if v != "" {
			o[key] = v
		}
	}

	if t.PasswordCallback != "" {
		fn, err := reg.password(t.PasswordCallback)
		if err != nil {
			return nil, err
		}
		o[transport.KeyPasswordCallback] = fn
	}
	if t.ErrorCallback != "" {
		fn, err := reg.errorCallback(t.ErrorCallback)
		if err != nil {
			return nil, err
		}
		o[transport.KeyErrorCallback] = fn
	}
	return o, nil
}

// HostConfig returns the server-wide transport defaults. The lookup falls
// back to environment variables through a Resolver.
func (c *Config) HostConfig(reg *Registry) (transport.HostConfig, error) {
	o, err := c.Server.TLS.Overrides(reg)
	if err != nil {
		return transport.HostConfig{}, fmt.Errorf("server: %w", err)
	}
	return transport.HostConfig{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		Backlog:      c.Server.Backlog,
		TLS:          o,
		Lookup:       NewResolver(reg),
		CaptureLimit: c.Server.CaptureLimit,
	}, nil
}

// Requests returns one connect request per configured listener.
func (c *Config) Requests(reg *Registry) ([]transport.ConnectRequest, error) {
	reqs := make([]transport.ConnectRequest, 0, len(c.Listeners))
	for i, l := range c.Listeners {
		family, err := parseFamily(l.Family, c.Server.IPv6)
		if err != nil {
			return nil, fmt.Errorf("listeners[%d]: %w", i, err)
		}
		o, err := l.TLS.Overrides(reg)
		if err != nil {
			return nil, fmt.Errorf("listeners[%d]: %w", i, err)
		}
		reqs = append(reqs, transport.ConnectRequest{
			Host:     l.Host,
			Port:     l.Port,
			Backlog:  l.Backlog,
			Family:   family,
			Protocol: l.Protocol,
			TLS:      o,
		})
	}
	return reqs, nil
}
