package transport

import (
	"crypto"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/hkdf"

	"github.com/tlsock/tlsock-go/pkg/cert"
	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// Option is a baseline robustness option applied at context construction.
type Option uint32

const (
	// OptAllBugWorkarounds enables every interoperability workaround the
	// TLS library offers. crypto/tls applies its workarounds unconditionally;
	// the flag records that the context asked for them.
	OptAllBugWorkarounds Option = 1 << iota

	// OptNoLegacyVersions refuses protocol versions below TLS 1.2.
	OptNoLegacyVersions
)

// Mode is a buffering mode flag.
type Mode uint32

const (
	// ModeEnablePartialWrite lets Write make progress one record at a time.
	ModeEnablePartialWrite Mode = 1 << iota

	// ModeReleaseBuffers drops a connection's read buffer once it has been
	// fully consumed.
	ModeReleaseBuffers
)

const ticketKeyInfo = "tlsock session ticket key v1"

// Context is the compiled certificate/key/options bundle shared by every
// session spawned from one listener. It is read-only after construction.
type Context struct {
	material *Material
	config   *tls.Config
	options  Option
	mode     Mode

	mu    sync.Mutex
	freed bool
	frees int

	sessionsNew   atomic.Int64
	sessionsFreed atomic.Int64
}

// NewContext builds a Context from m. Drains are reported to m.ErrorCallback
// with a nil connection.
func NewContext(m *Material) (*Context, error) {
	return newContext(m, errqueue.NewAdapter(nil, func(op string, entries []errqueue.Entry, fatal bool) {
		if m.ErrorCallback != nil {
			m.ErrorCallback(nil, op, entries, fatal)
		}
	}))
}

func newContext(m *Material, a *errqueue.Adapter) (*Context, error) {
	if m == nil {
		return nil, &ConfigError{Key: KeyKeyFile, Reason: "no TLS material"}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	errqueue.LoadErrorStrings()
	q := a.Queue()

	c := &Context{material: m, config: &tls.Config{}}
	if err := a.DrainFatal("ctx_new"); err != nil {
		return nil, err
	}

	c.options = OptAllBugWorkarounds | OptNoLegacyVersions
	c.config.MinVersion = tls.VersionTLS12
	if err := a.DrainFatal("ctx_set_options"); err != nil {
		return nil, err
	}

	c.mode = ModeEnablePartialWrite | ModeReleaseBuffers
	if err := a.DrainFatal("ctx_set_mode"); err != nil {
		return nil, err
	}

	var key crypto.PrivateKey
	if m.UseCert {
		var err error
		key, err = cert.ReadKeyFile(m.KeyFile, cert.PasswordFunc(m.PasswordCallback))
		if err != nil {
			q.Push(fmt.Errorf("%s: %w", m.KeyFile, err))
		}
		if err := a.DrainFatal("use_private_key_file"); err != nil {
			return nil, err
		}

		chain, err := cert.ReadCertFile(m.CertFile)
		if err != nil {
			q.Push(fmt.Errorf("%s: %w", m.CertFile, err))
		}
		if err := a.DrainFatal("use_certificate_file"); err != nil {
			return nil, err
		}

		if err := cert.CheckKeyPair(chain[0], key); err != nil {
			q.Push(err)
		}
		if err := a.DrainFatal("check_private_key"); err != nil {
			return nil, err
		}

		tc := tls.Certificate{PrivateKey: key, Leaf: chain[0]}
		for _, x := range chain {
			tc.Certificate = append(tc.Certificate, x.Raw)
		}
		c.config.Certificates = []tls.Certificate{tc}
	}

	if m.CipherList != "" {
		suites, err := ParseCipherList(m.CipherList)
		if err != nil {
			q.Push(err)
		}
		if err := a.DrainFatal("set_cipher_list"); err != nil {
			return nil, err
		}
		c.config.CipherSuites = suites
	}

	if m.CAFile != "" || m.CAPath != "" {
		pool, err := cert.LoadCAs(m.CAFile, m.CAPath)
		if err != nil {
			q.Push(err)
		}
		if err := a.DrainFatal("load_verify_locations"); err != nil {
			return nil, err
		}
		if m.Server {
			c.config.ClientCAs = pool
		} else {
			c.config.RootCAs = pool
		}
	}

	c.config.ClientAuth = m.VerifyMode.clientAuth()
	if !m.Server && m.VerifyMode&VerifyPeer == 0 {
		c.config.InsecureSkipVerify = true
	}
	if err := a.DrainFatal("set_verify"); err != nil {
		return nil, err
	}

	if key != nil {
		tk, err := deriveTicketKey(key)
		if err != nil {
			q.Push(err)
		} else {
			c.config.SetSessionTicketKeys([][32]byte{tk})
		}
		if err := a.DrainFatal("set_session_ticket_keys"); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// deriveTicketKey derives the session ticket key from the private key so that
// a restarted process can resume sessions issued before the restart.
func deriveTicketKey(key crypto.PrivateKey) ([32]byte, error) {
	var out [32]byte
	der, err := cert.MarshalKeyDER(key)
	if err != nil {
		return out, fmt.Errorf("ticket key: %w", err)
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, der, nil, []byte(ticketKeyInfo)), out[:]); err != nil {
		return out, fmt.Errorf("ticket key: %w", err)
	}
	return out, nil
}

// NewSession creates a session for raw. Failures are pushed onto q; the
// caller drains under the "ssl_new" label.
func (c *Context) NewSession(raw net.Conn, q *errqueue.Queue) *Session {
	c.mu.Lock()
	freed := c.freed
	c.mu.Unlock()
	if freed {
		q.Push(ErrContextFreed)
		return nil
	}
	c.sessionsNew.Add(1)
	return &Session{ctx: c, raw: raw, q: q}
}

// Config returns a clone of the compiled tls.Config.
func (c *Context) Config() *tls.Config {
	return c.config.Clone()
}

// Options returns the baseline options applied at construction.
func (c *Context) Options() Option {
	return c.options
}

// Mode returns the buffering mode flags.
func (c *Context) Mode() Mode {
	return c.mode
}

// Material returns the material the context was built from.
func (c *Context) Material() *Material {
	return c.material
}

// Free releases the context. Only the first call has an effect; every call
// is counted.
func (c *Context) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frees++
	if c.freed {
		return
	}
	c.freed = true
}

// Freed reports whether Free has been called.
func (c *Context) Freed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freed
}

// FreeCount returns the number of Free calls, including no-op repeats.
func (c *Context) FreeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}

// SessionStats returns how many sessions were created from the context and
// how many of them were freed.
func (c *Context) SessionStats() (created, freed int64) {
	return c.sessionsNew.Load(), c.sessionsFreed.Load()
}

var (
	cipherOnce  sync.Once
	cipherTable map[string]*tls.CipherSuite
)

func loadCipherTable() {
	cipherOnce.Do(func() {
		cipherTable = make(map[string]*tls.CipherSuite)
		for _, list := range [][]*tls.CipherSuite{tls.CipherSuites(), tls.InsecureCipherSuites()} {
			for _, s := range list {
				cipherTable[s.Name] = s
			}
		}
	})
}

// ParseCipherList parses a ',' or ':' separated list of IANA cipher suite
// names. TLS 1.3 suites are accepted and skipped since crypto/tls always
// enables them; a list of only TLS 1.3 suites yields nil (library defaults).
func ParseCipherList(list string) ([]uint16, error) {
	loadCipherTable()

	var out []uint16
	for _, name := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ':' }) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, ok := cipherTable[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher %q", name)
		}
		if isTLS13Only(s) {
			continue
		}
		out = append(out, s.ID)
	}
	return out, nil
}

func isTLS13Only(s *tls.CipherSuite) bool {
	for _, v := range s.SupportedVersions {
		if v != tls.VersionTLS13 {
			return false
		}
	}
	return true
}
