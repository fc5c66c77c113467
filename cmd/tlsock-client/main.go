// Command tlsock-client is an interactive line client for tlsock servers.
//
// Each line typed is sent to the server; everything the server sends is
// printed as it arrives. Lines starting with a slash are client commands
// (/help, /info, /quit).
//
// Usage:
//
//	tlsock-client [flags] [host:port]
//
// Flags:
//
//	-browse duration    Browse mDNS for servers for this long; connect to the first match when no address is given
//	-protocol string    Only consider announced listeners serving this protocol
//	-ca string          CA bundle used to verify the server
//	-insecure           Skip certificate verification (announced fingerprints are still checked)
//	-server-name string Server name for SNI and verification
//
// Examples:
//
//	# Connect to a local echo server with a self-signed certificate
//	tlsock-client -insecure localhost:4433
//
//	# Find an announced echo listener and connect to it
//	tlsock-client -browse 3s -protocol echo -insecure
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/tlsock/tlsock-go/pkg/cert"
	"github.com/tlsock/tlsock-go/pkg/discovery"
)

var (
	browse     = flag.Duration("browse", 0, "Browse mDNS for servers for this long")
	protocol   = flag.String("protocol", "", "Only consider announced listeners serving this protocol")
	caFile     = flag.String("ca", "", "CA bundle used to verify the server")
	insecure   = flag.Bool("insecure", false, "Skip certificate verification")
	serverName = flag.String("server-name", "", "Server name for SNI and verification")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	addr := flag.Arg(0)
	var pinned string

	if *browse > 0 {
		services, err := browseServices(*browse, *protocol)
		if err != nil {
			log.Fatalf("Browse failed: %v", err)
		}
		for _, svc := range services {
			fmt.Printf("%-40s %-8s %s:%d %v\n", svc.Instance, svc.Protocol, svc.Host, svc.Port, svc.Addresses)
		}
		if addr == "" {
			if len(services) == 0 {
				log.Fatal("No servers found")
			}
			addr, pinned = serviceAddr(services[0]), services[0].Fingerprint
		}
	}
	if addr == "" {
		fmt.Fprintln(os.Stderr, "Error: server address required")
		flag.Usage()
		os.Exit(1)
	}

	tlsConfig, err := clientConfig(addr, *caFile, *serverName, *insecure, pinned)
	if err != nil {
		log.Fatalf("TLS configuration: %v", err)
	}

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
	if err != nil {
		log.Fatalf("Connect to %s: %v", addr, err)
	}

	s, err := newSession(conn)
	if err != nil {
		conn.Close()
		log.Fatalf("Failed to start: %v", err)
	}
	s.Run()
}

// browseServices collects announced listeners for d.
func browseServices(d time.Duration, proto string) ([]*discovery.Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	ch, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{}).Browse(ctx)
	if err != nil {
		return nil, err
	}
	var found []*discovery.Service
	for svc := range ch {
		if proto != "" && svc.Protocol != proto {
			continue
		}
		found = append(found, svc)
	}
	return found, nil
}

// serviceAddr prefers the first advertised address over the host name.
func serviceAddr(svc *discovery.Service) string {
	host := svc.Host
	if len(svc.Addresses) > 0 {
		host = svc.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(svc.Port)))
}

// clientConfig builds the client TLS configuration. A non-empty pinned
// fingerprint must match the server's leaf certificate even when
// verification is otherwise skipped.
func clientConfig(addr, ca, name string, skipVerify bool, pinned string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify,
		ServerName:         name,
	}
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		cfg.ServerName = host
	}
	if ca != "" {
		pool, err := cert.LoadCAs(ca, "")
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if pinned != "" {
		cfg.VerifyConnection = verifyFingerprint(pinned)
	}
	return cfg, nil
}

func verifyFingerprint(want string) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return fmt.Errorf("server sent no certificate")
		}
		if got := discovery.Fingerprint(cs.PeerCertificates[0]); got != want {
			return fmt.Errorf("certificate fingerprint %s does not match announced %s", got, want)
		}
		return nil
	}
}
