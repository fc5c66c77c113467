// Command tlsock-echo is a line echo server built on tlsock listeners.
//
// Every line a client sends is written back unchanged. The server runs one
// goroutine per connection and supports graceful restart: on SIGHUP it
// starts a fresh copy of itself that inherits the listening sockets, then
// drains its own connections and exits.
//
// Usage:
//
//	tlsock-echo [flags]
//
// Flags:
//
//	-config string        Host configuration file (YAML)
//	-host string          Listen host (default "*")
//	-port string          Listen port (default "4433")
//	-cert string          Certificate file
//	-key string           Private key file
//	-self-signed string   Write a self-signed certificate into this directory and use it
//	-read-mode string     Read mode: readiness, busy
//	-protocol-log string  Write protocol events to this file
//	-mdns                 Announce listeners over mDNS
//	-max-conns int        Maximum concurrent connections (0 = unlimited)
//	-drain duration       How long to wait for connections on shutdown (default 10s)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Development server with a throwaway certificate
//	tlsock-echo -self-signed /tmp/tlsock -port 4433
//
//	# Configured server
//	tlsock-echo -config /etc/tlsock/echo.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tlsock/tlsock-go/pkg/cert"
	"github.com/tlsock/tlsock-go/pkg/config"
	"github.com/tlsock/tlsock-go/pkg/server"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile  string
	Host        string
	Port        string
	CertFile    string
	KeyFile     string
	SelfSigned  string
	ReadMode    string
	ProtocolLog string
	MDNS        bool
	MaxConns    int
	LogLevel    string
	DrainTime   time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Host configuration file (YAML)")
	flag.StringVar(&flags.Host, "host", "", "Listen host (default \"*\")")
	flag.StringVar(&flags.Port, "port", "", "Listen port (default \"4433\")")
	flag.StringVar(&flags.CertFile, "cert", "", "Certificate file")
	flag.StringVar(&flags.KeyFile, "key", "", "Private key file")
	flag.StringVar(&flags.SelfSigned, "self-signed", "", "Write a self-signed certificate into this directory and use it")
	flag.StringVar(&flags.ReadMode, "read-mode", "", "Read mode: readiness, busy")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this file")
	flag.BoolVar(&flags.MDNS, "mdns", false, "Announce listeners over mDNS")
	flag.IntVar(&flags.MaxConns, "max-conns", 0, "Maximum concurrent connections (0 = unlimited)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.DurationVar(&flags.DrainTime, "drain", 10*time.Second, "How long to wait for connections on shutdown")
}

func main() {
	flag.Parse()

	logger := setupLogging(flags.LogLevel)

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	reg := config.NewRegistry()
	reg.RegisterPassword("env", config.EnvPassword("TLSOCK_KEY_PASSWORD"))
	reg.RegisterErrorCallback("log", logErrors(logger))

	srv, err := server.New(server.Options{
		Config:   cfg,
		Registry: reg,
		Handler:  echoHandler(logger),
		Logger:   logger,
		MaxConns: flags.MaxConns,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	for _, l := range srv.Listeners() {
		log.Printf("Listening on %s (%s, %s)", l.Addr(), l.Config().Protocol, l.Config().Family)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
		if sig == syscall.SIGHUP {
			if _, err := srv.Restart(); err != nil {
				log.Printf("Restart failed, keeping current process: %v", err)
				waitForStop(sigCh)
			}
		}
	case err := <-srv.Errors():
		log.Printf("Listener failure: %v", err)
	}

	log.Println("Shutting down...")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), flags.DrainTime)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	log.Println("Goodbye!")
}

// waitForStop blocks until SIGINT or SIGTERM.
func waitForStop(sigCh <-chan os.Signal) {
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			return
		}
		log.Println("Ignoring SIGHUP after failed restart")
	}
}

func setupLogging(level string) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// loadConfig reads the configuration file, if any, and applies the flags
// on top of it.
func loadConfig(f Flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.ConfigFile != "" {
		cfg, err = config.Load(f.ConfigFile)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	if f.Host != "" {
		cfg.Server.Host = f.Host
	}
	if f.Port != "" {
		cfg.Server.Port = f.Port
	}
	if f.SelfSigned != "" {
		if err := os.MkdirAll(f.SelfSigned, 0o700); err != nil {
			return nil, err
		}
		certPath, keyPath, err := cert.GenerateSelfSignedFiles(f.SelfSigned, "localhost", "127.0.0.1", "::1")
		if err != nil {
			return nil, fmt.Errorf("self-signed certificate: %w", err)
		}
		cfg.Server.CertFile, cfg.Server.KeyFile = certPath, keyPath
	}
	if f.CertFile != "" {
		cfg.Server.CertFile = f.CertFile
	}
	if f.KeyFile != "" {
		cfg.Server.KeyFile = f.KeyFile
	}
	if f.ReadMode != "" {
		cfg.Server.ReadMode = f.ReadMode
	}
	if f.ProtocolLog != "" {
		cfg.Server.ProtocolLog = f.ProtocolLog
	}
	if f.MDNS {
		cfg.Server.MDNS.Enabled = true
	}
	for i := range cfg.Listeners {
		if cfg.Listeners[i].Protocol == "tls" {
			cfg.Listeners[i].Protocol = "echo"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
