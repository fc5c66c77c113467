package main

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// session pairs a readline prompt with a TLS connection.
type session struct {
	conn *tls.Conn
	rl   *readline.Instance
	out  io.Writer
}

func newSession(conn *tls.Conn) (*session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tlsock> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &session{conn: conn, rl: rl, out: rl.Stdout()}, nil
}

// Run prints server output in the background and sends typed lines until
// the user quits or the server closes the connection.
func (s *session) Run() {
	closeInput := sync.OnceFunc(func() { _ = s.rl.Close() })
	defer closeInput()
	defer s.conn.Close()

	fmt.Fprintf(s.out, "Connected to %s\n", s.conn.RemoteAddr())
	s.printInfo()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		s.pump(s.conn)
		fmt.Fprintln(s.out, "Server closed the connection")
		closeInput()
	}()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			break
		}
		if quit := s.handle(line); quit {
			break
		}
	}

	// Half-close so the server sees end of stream, then wait for the tail
	// of its output.
	_ = s.conn.CloseWrite()
	<-closed
}

// handle processes one input line. It reports whether the session should
// end.
func (s *session) handle(line string) bool {
	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(line)
		switch strings.ToLower(fields[0]) {
		case "/quit", "/exit", "/q":
			return true
		case "/info":
			s.printInfo()
		case "/help", "/?":
			s.printHelp()
		default:
			fmt.Fprintf(s.out, "Unknown command: %s (type /help for commands)\n", fields[0])
		}
		return false
	}

	if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
		fmt.Fprintf(s.out, "Send failed: %v\n", err)
		return true
	}
	return false
}

// pump copies server output line by line until r ends.
func (s *session) pump(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fmt.Fprintf(s.out, "< %s\n", sc.Text())
	}
}

func (s *session) printInfo() {
	cs := s.conn.ConnectionState()
	fmt.Fprintf(s.out, "  TLS:    %s, %s\n", tls.VersionName(cs.Version), tls.CipherSuiteName(cs.CipherSuite))
	if len(cs.PeerCertificates) > 0 {
		leaf := cs.PeerCertificates[0]
		fmt.Fprintf(s.out, "  Server: %s (expires %s)\n", leaf.Subject.CommonName, leaf.NotAfter.Format("2006-01-02"))
	}
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, `
Commands:
  <text>   - Send text followed by a newline
  /info    - Show TLS connection details
  /help    - Show this help
  /quit    - Close the connection and exit`)
}
