// Package transport provides non-blocking TLS listeners and connections
// that behave like ordinary buffered byte streams.
//
// A Listener owns one bound TCP socket and the TLS Context built from its
// resolved Material. Every accepted Conn shares that Context; the TLS
// session is created, and the handshake run, on the connection's first
// stream operation.
//
// # Layers
//
//	┌────────────────────────────────┐
//	│   Stream engine (ReadUntil,    │
//	│   ReadLine, Write, Seek)       │
//	├────────────────────────────────┤
//	│   Session (crypto/tls)         │
//	├────────────────────────────────┤
//	│   Non-blocking descriptor I/O  │
//	├────────────────────────────────┤
//	│   TCP (IPv4, IPv6)             │
//	└────────────────────────────────┘
//
// # Errors
//
// Every TLS step pushes failures onto a per-connection errqueue.Queue and
// the engine drains it after the step. A drain during construction, the
// handshake or close is fatal and returns an *errqueue.FatalError. A drain
// after a write fails only that write with ErrWriteFailed. Drained entries
// are always handed to the Material's ErrorCallback.
//
// # Read modes
//
// ReadReadiness (the default) tries a non-blocking read and, when nothing is
// pending, polls the descriptor for a short interval before retrying.
// ReadBusy retries without polling, paced by exponential backoff.
//
// End of stream is reported as StatusNone, never as an error. Only Read
// returns io.EOF.
package transport
