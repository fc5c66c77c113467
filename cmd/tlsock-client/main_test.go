package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tlsock/tlsock-go/pkg/cert"
	"github.com/tlsock/tlsock-go/pkg/discovery"
)

func TestServiceAddr(t *testing.T) {
	svc := &discovery.Service{Host: "lab.local.", Port: 4433}
	if got := serviceAddr(svc); got != "lab.local.:4433" {
		t.Errorf("serviceAddr = %q", got)
	}

	svc.Addresses = []string{"fe80::1", "192.0.2.7"}
	if got := serviceAddr(svc); got != "[fe80::1]:4433" {
		t.Errorf("serviceAddr = %q", got)
	}
}

func TestClientConfig(t *testing.T) {
	cfg, err := clientConfig("localhost:4433", "", "", false, "")
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if cfg.ServerName != "localhost" || cfg.InsecureSkipVerify || cfg.VerifyConnection != nil {
		t.Errorf("unexpected config: %+v", cfg)
	}

	certPath, _, err := cert.GenerateSelfSignedFiles(t.TempDir(), "localhost")
	if err != nil {
		t.Fatal(err)
	}
	cfg, err = clientConfig("127.0.0.1:4433", certPath, "echo.example", true, "0123456789abcdef")
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if cfg.ServerName != "echo.example" || cfg.RootCAs == nil || cfg.VerifyConnection == nil {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := clientConfig("no-port", "", "", false, ""); err == nil {
		t.Error("expected error for address without port")
	}
	if _, err := clientConfig("localhost:1", filepath.Join(t.TempDir(), "absent.pem"), "", false, ""); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestVerifyFingerprint(t *testing.T) {
	leaf, _, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{Hosts: []string{"localhost"}})
	if err != nil {
		t.Fatal(err)
	}
	state := tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}}

	if err := verifyFingerprint(discovery.Fingerprint(leaf))(state); err != nil {
		t.Errorf("matching fingerprint rejected: %v", err)
	}
	if err := verifyFingerprint("0000000000000000")(state); err == nil {
		t.Error("mismatching fingerprint accepted")
	}
	if err := verifyFingerprint("0000000000000000")(tls.ConnectionState{}); err == nil {
		t.Error("missing certificate accepted")
	}
}

func TestSessionHandle(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	var out bytes.Buffer
	s := &session{conn: tls.Client(client, &tls.Config{InsecureSkipVerify: true}), out: &out}

	if s.handle("/bogus") {
		t.Error("unknown command ended the session")
	}
	if !strings.Contains(out.String(), "Unknown command: /bogus") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if s.handle("/help") {
		t.Error("/help ended the session")
	}
	if !strings.Contains(out.String(), "/quit") {
		t.Errorf("help output = %q", out.String())
	}

	if !s.handle("/quit") {
		t.Error("/quit did not end the session")
	}
}

func TestSessionPump(t *testing.T) {
	var out bytes.Buffer
	s := &session{out: &out}
	s.pump(strings.NewReader("one\ntwo\nthree"))

	want := "< one\n< two\n< three\n"
	if out.String() != want {
		t.Errorf("pump output = %q, want %q", out.String(), want)
	}
}
