// Package log provides structured protocol event logging for tlsock.
//
// It is separate from operational logging (slog): protocol capture records a
// machine-readable trace of what each listener, connection and TLS session
// did, including every drained error list, for later analysis with the
// tlsock-log tool.
//
// # Basic Usage
//
//	// Development: print events through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR events to a file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/tlsock/server.tlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(slogAdapter, fileLogger)
//
// # Event Types
//
// Events are captured at three layers:
//   - Socket: listener bind/reconnect/accept/close
//   - TLS: session establishment and library error drains
//   - Stream: buffered reads and writes (IOEvent)
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events with integer keys
// (.tlog extension).
package log
