package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// isWildcard reports whether host means "all interfaces".
func isWildcard(host string) bool {
	switch host {
	case "", "*", "0.0.0.0", "::", "[::]":
		return true
	}
	return false
}

func resolveIP(host string, family AddressFamily) (net.IP, error) {
	if isWildcard(host) {
		if family == FamilyIPv4 {
			return net.IPv4zero, nil
		}
		return net.IPv6unspecified, nil
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		var err error
		ips, err = net.LookupIP(host)
		if err != nil {
			return nil, err
		}
	}

	var mapped net.IP
	for _, ip := range ips {
		v4 := ip.To4()
		switch {
		case family == FamilyIPv4 && v4 != nil:
			return v4, nil
		case family != FamilyIPv4 && v4 == nil:
			return ip, nil
		case family != FamilyIPv4 && mapped == nil:
			mapped = ip.To16()
		}
	}
	if mapped != nil {
		return mapped, nil
	}
	return nil, fmt.Errorf("no %s address for %q", family, host)
}

// resolvePort accepts a number or a service name.
func resolvePort(port string) (int, error) {
	if port == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(port); err == nil {
		if n < 0 || n > 65535 {
			return 0, fmt.Errorf("port %d out of range", n)
		}
		return n, nil
	}
	return net.LookupPort("tcp", port)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// listenTCP creates, binds and listens on a TCP socket with SO_REUSEADDR and
// the configured backlog, then hands the descriptor to the net package.
func listenTCP(cfg ListenerConfig) (*net.TCPListener, error) {
	ip, err := resolveIP(cfg.Host, cfg.Family)
	if err != nil {
		return nil, err
	}
	port, err := resolvePort(cfg.Port)
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if cfg.Family == FamilyIPv4 {
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip.To4())
		sa = sa4
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	ok := false
	defer func() {
		if !ok {
			unix.Close(fd)
		}
	}()

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if domain == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolInt(cfg.V6Only)); err != nil {
			return nil, os.NewSyscallError("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tlsock-listener")
	ok = true
	defer f.Close()

	return fileListener(f)
}

// fileListener wraps a listening descriptor. f is duplicated; the caller
// keeps ownership of f.
func fileListener(f *os.File) (*net.TCPListener, error) {
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, err
	}
	tl, isTCP := ln.(*net.TCPListener)
	if !isTCP {
		ln.Close()
		return nil, fmt.Errorf("descriptor %d is a %T, not a TCP listener", f.Fd(), ln)
	}
	return tl, nil
}

// acceptNonblock accepts one pending connection or returns ErrWouldBlock.
func acceptNonblock(ln *net.TCPListener) (net.Conn, error) {
	rc, err := ln.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		nfd  int
		aerr error
	)
	if err := rc.Control(func(fd uintptr) {
		nfd, _, aerr = unix.Accept(int(fd))
	}); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
	if aerr != nil {
		if errqueue.IsWouldBlock(aerr) || errors.Is(aerr, unix.ECONNABORTED) || errors.Is(aerr, unix.EINTR) {
			return nil, ErrWouldBlock
		}
		return nil, os.NewSyscallError("accept", aerr)
	}
	unix.CloseOnExec(nfd)

	f := os.NewFile(uintptr(nfd), "tlsock-conn")
	defer f.Close()
	return net.FileConn(f)
}
