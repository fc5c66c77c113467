package transport

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/tlsock/tlsock-go/pkg/cert"
	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

func writeMaterial(t *testing.T) *Material {
	t.Helper()
	certPath, keyPath, err := cert.GenerateSelfSignedFiles(t.TempDir(), "localhost")
	if err != nil {
		t.Fatalf("GenerateSelfSignedFiles failed: %v", err)
	}
	m := DefaultMaterial()
	m.CertFile = certPath
	m.KeyFile = keyPath
	return m
}

func TestNewContextDefaults(t *testing.T) {
	ctx, err := NewContext(writeMaterial(t))
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	if ctx.Options()&OptAllBugWorkarounds == 0 {
		t.Error("expected OptAllBugWorkarounds")
	}
	if ctx.Mode() != ModeEnablePartialWrite|ModeReleaseBuffers {
		t.Errorf("Mode = %b", ctx.Mode())
	}

	cfg := ctx.Config()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(cfg.Certificates))
	}
	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v", cfg.ClientAuth)
	}
}

func TestNewContextStepFailures(t *testing.T) {
	other := writeMaterial(t)

	tests := []struct {
		name   string
		mutate func(m *Material)
		op     string
	}{
		{
			name:   "missing key file",
			mutate: func(m *Material) { m.KeyFile = filepath.Join(t.TempDir(), "absent.key") },
			op:     "use_private_key_file",
		},
		{
			name:   "missing cert file",
			mutate: func(m *Material) { m.CertFile = filepath.Join(t.TempDir(), "absent.crt") },
			op:     "use_certificate_file",
		},
		{
			name:   "key does not match certificate",
			mutate: func(m *Material) { m.KeyFile = other.KeyFile },
			op:     "check_private_key",
		},
		{
			name:   "unknown cipher",
			mutate: func(m *Material) { m.CipherList = "TLS_NOT_A_CIPHER" },
			op:     "set_cipher_list",
		},
		{
			name:   "bad CA file",
			mutate: func(m *Material) { m.CAFile = filepath.Join(t.TempDir(), "absent.pem") },
			op:     "load_verify_locations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := writeMaterial(t)
			tt.mutate(m)

			var seen []string
			m.ErrorCallback = func(c *Conn, op string, _ []errqueue.Entry, fatal bool) {
				if c != nil {
					t.Error("context drains must not carry a connection")
				}
				if !fatal {
					t.Error("context drains must be fatal")
				}
				seen = append(seen, op)
			}

			_, err := NewContext(m)
			fe, ok := err.(*errqueue.FatalError)
			if !ok {
				t.Fatalf("expected *errqueue.FatalError, got %T: %v", err, err)
			}
			if fe.Op != tt.op {
				t.Errorf("Op = %q, want %q", fe.Op, tt.op)
			}
			if len(seen) != 1 || seen[0] != tt.op {
				t.Errorf("callback ops = %v, want [%s]", seen, tt.op)
			}
		})
	}
}

func TestNewContextWithoutCertLoading(t *testing.T) {
	m := DefaultMaterial()
	m.UseCert = false
	m.KeyFile = "unused.key"
	m.CertFile = "unused.crt"

	ctx, err := NewContext(m)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	if n := len(ctx.Config().Certificates); n != 0 {
		t.Errorf("expected no certificates, got %d", n)
	}
}

func TestNewContextEncryptedKey(t *testing.T) {
	dir := t.TempDir()
	c, key, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{Hosts: []string{"localhost"}})
	if err != nil {
		t.Fatalf("GenerateSelfSigned failed: %v", err)
	}
	pemBytes, err := cert.EncodeEncryptedKeyPEM(key, []byte("hunter2"))
	if err != nil {
		t.Fatalf("EncodeEncryptedKeyPEM failed: %v", err)
	}

	m := DefaultMaterial()
	m.CertFile = filepath.Join(dir, "server.crt")
	m.KeyFile = filepath.Join(dir, "server.key")
	if err := cert.WriteCertFile(m.CertFile, c); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.KeyFile, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewContext(m); err == nil {
		t.Fatal("expected failure without a password callback")
	}

	calls := 0
	m.PasswordCallback = func() ([]byte, error) {
		calls++
		return []byte("hunter2"), nil
	}
	if _, err := NewContext(m); err != nil {
		t.Fatalf("NewContext with password failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("password callback called %d times", calls)
	}
}

func TestNewContextVerifyPeer(t *testing.T) {
	m := writeMaterial(t)
	m.CAFile = m.CertFile
	m.VerifyMode = VerifyPeer | VerifyFailIfNoPeerCert

	ctx, err := NewContext(m)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	cfg := ctx.Config()
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil {
		t.Error("expected client CA pool")
	}
}

func TestTicketKeyIsStableAcrossContexts(t *testing.T) {
	m := writeMaterial(t)
	key, err := cert.ReadKeyFile(m.KeyFile, nil)
	if err != nil {
		t.Fatal(err)
	}

	k1, err := deriveTicketKey(key)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := deriveTicketKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Error("ticket key must be deterministic for one private key")
	}

	otherKey, err := cert.ReadKeyFile(writeMaterial(t).KeyFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	k3, err := deriveTicketKey(otherKey)
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k3 {
		t.Error("different keys must derive different ticket keys")
	}
}

func TestContextFree(t *testing.T) {
	ctx, err := NewContext(writeMaterial(t))
	if err != nil {
		t.Fatal(err)
	}

	ctx.Free()
	ctx.Free()
	if !ctx.Freed() {
		t.Error("expected Freed")
	}
	if ctx.FreeCount() != 2 {
		t.Errorf("FreeCount = %d, want 2", ctx.FreeCount())
	}

	q := errqueue.NewQueue()
	if s := ctx.NewSession(nil, q); s != nil {
		t.Error("expected no session from a freed context")
	}
	if q.Len() != 1 {
		t.Errorf("expected one queued error, got %d", q.Len())
	}
}

func TestParseCipherList(t *testing.T) {
	ids, err := ParseCipherList("TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:TLS_AES_128_GCM_SHA256, TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384")
	if err != nil {
		t.Fatalf("ParseCipherList failed: %v", err)
	}
	want := []uint16{tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %x, want %x", i, ids[i], want[i])
		}
	}

	ids, err = ParseCipherList("TLS_AES_256_GCM_SHA384")
	if err != nil || ids != nil {
		t.Errorf("TLS 1.3 only list: got %v, %v", ids, err)
	}

	if _, err := ParseCipherList("RC4-MD5"); err == nil {
		t.Error("expected error for unknown cipher")
	}
}
