package transport

import (
	"io"
	"net"
	"regexp"
	"time"
)

// Stream is the byte-stream surface a host framework drives. Plaintext
// sockets and TLS connections can both satisfy it.
// Implemented by Conn.
type Stream interface {
	io.ReadWriteCloser
	io.Seeker

	// ReadUntil reads until a byte count, a delimiter, or end of stream.
	ReadUntil(maxBytes int, delim *regexp.Regexp, nonGreedy bool) (Status, []byte, error)

	// ReadExact reads n bytes into p[off:].
	ReadExact(p []byte, n, off int) (int, error)

	// ReadLine reads one newline-terminated line.
	ReadLine() (Status, []byte, error)

	// ReadLines reads every complete line available before the stream
	// stops matching.
	ReadLines() ([][]byte, error)

	// Printf writes formatted output.
	Printf(format string, args ...any) error

	// WriteLine writes s and a newline.
	WriteLine(s string) error

	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Acceptor produces connections.
// Implemented by Listener.
type Acceptor interface {
	Accept() (*Conn, error)
	TryAccept() (*Conn, error)
	Addr() net.Addr
	Close() error
}

// binding is what the stream engine needs from a TLS session. Each failing
// call pushes onto the connection's error queue before returning.
type binding interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// WaitReadable waits up to timeout for input. Timing out is not an
	// error.
	WaitReadable(timeout time.Duration) error

	// WaitWritable blocks until output can proceed.
	WaitWritable() error
}

// Compile-time interface satisfaction checks.
var (
	_ Stream   = (*Conn)(nil)
	_ Acceptor = (*Listener)(nil)
	_ binding  = (*Session)(nil)
	_ Host     = HostFunc(nil)
)
