package transport

import (
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollSlice bounds a single poll(2) call so a waiter notices a concurrent
// close of the descriptor.
const pollSlice = 100 * time.Millisecond

func rawConnOf(c net.Conn) (syscall.RawConn, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("%T does not expose a descriptor", c)
	}
	return sc.SyscallConn()
}

func setNonblock(rc syscall.RawConn) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return err
	}
	return serr
}

// readNonblock issues one read(2) without parking on the runtime poller.
// EAGAIN and EINTR are returned as the raw errno so crypto/tls treats them as
// temporary and keeps the connection usable.
func readNonblock(rc syscall.RawConn, p []byte) (int, error) {
	var (
		n    int
		rerr error
	)
	if err := rc.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	if rerr != nil {
		return n, rerr
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// pollFd waits up to timeout for events on the descriptor. It reports whether
// any event (including POLLHUP/POLLERR) was returned.
func pollFd(rc syscall.RawConn, events int16, timeout time.Duration) (bool, error) {
	var (
		ready bool
		perr  error
	)
	err := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		for {
			n, e := unix.Poll(fds, int(timeout/time.Millisecond))
			if e == unix.EINTR {
				continue
			}
			perr = e
			ready = n > 0
			return
		}
	})
	if err != nil {
		return false, err
	}
	return ready, perr
}

// waitWritable blocks until the descriptor accepts more data.
func waitWritable(rc syscall.RawConn) error {
	for {
		ready, err := pollFd(rc, unix.POLLOUT, pollSlice)
		if err != nil || ready {
			return err
		}
	}
}

// fdConn is the transport crypto/tls runs over. The handshake uses blocking
// reads bounded by deadlines; afterwards reads are non-blocking.
type fdConn struct {
	net.Conn
	rc       syscall.RawConn
	nonblock bool
}

func (c *fdConn) Read(p []byte) (int, error) {
	if !c.nonblock {
		return c.Conn.Read(p)
	}
	return readNonblock(c.rc, p)
}
