package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/log"
)

// chunkSize is the size of one refill read and the largest write handed to
// the session in partial-write mode (one maximum-size TLS record).
const chunkSize = 16 * 1024

// Status reports how ReadUntil finished.
type Status uint8

const (
	// StatusNone means nothing matched: the stream ended or the read was
	// aborted. Any partial data is still returned.
	StatusNone Status = 0

	// StatusDelimiter means the delimiter matched.
	StatusDelimiter Status = 1

	// StatusLength means the byte count was satisfied from buffered data.
	StatusLength Status = 2

	// StatusFill means the byte count was reached exactly during a refill.
	StatusFill Status = 3
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusDelimiter:
		return "DELIMITER"
	case StatusLength:
		return "LENGTH"
	case StatusFill:
		return "FILL"
	default:
		return "UNKNOWN"
	}
}

var lineDelimiter = regexp.MustCompile(`\n`)

// ReadUntil reads until maxBytes are available, delim matches, or the
// stream ends. maxBytes <= 0 and a nil delim mean the bound is absent; with
// both absent ReadUntil returns everything up to end of stream. With
// nonGreedy set a refill never reads past maxBytes. Bytes beyond the returned data stay
// buffered for the next call.
func (c *Conn) ReadUntil(maxBytes int, delim *regexp.Regexp, nonGreedy bool) (Status, []byte, error) {
	if err := c.ensureSession(); err != nil {
		return StatusNone, nil, err
	}

	content := c.buf
	c.buf = nil

	for {
		if len(content) > 0 {
			if maxBytes > 0 && len(content) >= maxBytes {
				return c.split(content, maxBytes, StatusLength), content[:maxBytes:maxBytes], nil
			}
			if delim != nil {
				if loc := delim.FindIndex(content); loc != nil && loc[1] > 0 {
					return c.split(content, loc[1], StatusDelimiter), content[:loc[1]:loc[1]], nil
				}
			}
		}

		var (
			progressed bool
			status     Status
			err        error
		)
		content, progressed, status, err = c.refill(content, maxBytes, nonGreedy)
		switch {
		case err != nil:
			c.buf = nil
			return StatusNone, content, err
		case status == StatusFill:
			return c.split(content, len(content), StatusFill), content, nil
		case !progressed:
			c.release(nil)
			c.pos += int64(len(content))
			c.logIO(log.DirectionIn, "read_until", content, StatusNone)
			return StatusNone, content, nil
		}
	}
}

// split keeps content[n:] buffered and accounts for content[:n].
func (c *Conn) split(content []byte, n int, status Status) Status {
	c.release(content[n:])
	c.pos += int64(n)
	c.logIO(log.DirectionIn, "read_until", content[:n], status)
	return status
}

// release stores the unconsumed remainder, dropping the backing array when
// nothing is left and the context asks for it.
func (c *Conn) release(rest []byte) {
	if len(rest) == 0 && c.ctx.Mode()&ModeReleaseBuffers != 0 {
		c.buf = nil
		return
	}
	c.buf = rest
}

// refill appends non-blocking reads to content until the session would
// block. It reports whether any bytes were added; false means end of stream
// or an aborted pass. status is StatusFill when nonGreedy reads reached
// maxBytes.
func (c *Conn) refill(content []byte, maxBytes int, nonGreedy bool) ([]byte, bool, Status, error) {
	if c.eof {
		return content, false, StatusNone, nil
	}

	progressed := false
	empty := 0
	for {
		want := chunkSize
		if nonGreedy && maxBytes > 0 {
			want = min(want, maxBytes-len(content))
		}
		content = grow(content, want)

		n, err := c.io.Read(content[len(content) : len(content)+want])
		if n > 0 {
			content = content[:len(content)+n]
			progressed = true
			empty = 0
			if c.pacing != nil {
				c.pacing.Reset()
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			c.eof = true
			return content, progressed, StatusNone, nil
		case errqueue.IsWouldBlock(err):
		case errqueue.IsRetryable(err):
			c.errs.Drain("ssl_read")
			continue
		default:
			if ferr := c.errs.DrainFatal("ssl_read"); ferr != nil {
				return content, false, StatusNone, ferr
			}
			return content, false, StatusNone, fmt.Errorf("ssl_read: %w", err)
		}

		if entries := c.errs.Drain("ssl_read"); len(entries) > 0 {
			return content, false, StatusNone, nil
		}

		if nonGreedy && maxBytes > 0 && len(content) == maxBytes {
			return content, true, StatusFill, nil
		}

		if err == nil {
			if n == 0 {
				empty++
				if empty >= 2 {
					c.eof = true
					return content, progressed, StatusNone, nil
				}
			}
			continue
		}

		// Would block.
		if progressed {
			return content, true, StatusNone, nil
		}
		if err := c.await(); err != nil {
			return content, false, StatusNone, err
		}
	}
}

// await pauses a refill pass that found no data.
func (c *Conn) await() error {
	if c.pacing != nil {
		return c.pacing.Wait(context.Background())
	}
	if err := c.io.WaitReadable(readinessWait); err != nil {
		c.errs.Queue().Push(err)
		return c.errs.DrainFatal("wait_readable")
	}
	return nil
}

// grow makes room for want more bytes after len(b).
func grow(b []byte, want int) []byte {
	if cap(b)-len(b) >= want {
		return b
	}
	nb := make([]byte, len(b), max(2*cap(b), len(b)+want))
	copy(nb, b)
	return nb
}

// ReadExact reads exactly n bytes into p[off:]. It returns fewer only when
// the stream ends first.
func (c *Conn) ReadExact(p []byte, n, off int) (int, error) {
	if off < 0 || n < 0 || off+n > len(p) {
		return 0, &MisuseError{Op: "read_exact", Err: ErrShortBuffer}
	}
	if n == 0 {
		return 0, nil
	}
	_, data, err := c.ReadUntil(n, nil, true)
	return copy(p[off:off+n], data), err
}

// Read implements io.Reader. It returns buffered bytes when there are any,
// otherwise it waits for the next refill. It returns io.EOF once the stream
// has ended and nothing is buffered.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.ensureSession(); err != nil {
		return 0, err
	}

	if len(c.buf) == 0 {
		content, progressed, _, err := c.refill(c.buf, 0, false)
		c.buf = content
		if err != nil {
			return 0, err
		}
		if !progressed && len(c.buf) == 0 {
			return 0, io.EOF
		}
	}

	n := copy(p, c.buf)
	c.release(c.buf[n:])
	c.pos += int64(n)
	c.logIO(log.DirectionIn, "read", p[:n], StatusNone)
	return n, nil
}

// ReadLine reads through the next newline, capped at the configured maximum
// line length.
func (c *Conn) ReadLine() (Status, []byte, error) {
	return c.ReadUntil(c.material.MaxGetlineLength, lineDelimiter, false)
}

// ReadLines reads lines until one does not end in a delimiter match. A
// trailing partial line is included.
func (c *Conn) ReadLines() ([][]byte, error) {
	var lines [][]byte
	for {
		status, line, err := c.ReadLine()
		if err != nil {
			return lines, err
		}
		if status != StatusDelimiter {
			if len(line) > 0 {
				lines = append(lines, line)
			}
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// Write sends p, waiting for writability before each attempt. A drained
// retryable error fails the write with ErrWriteFailed; any other error is a
// *errqueue.FatalError.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.ensureSession(); err != nil {
		return 0, err
	}

	sent := 0
	for sent < len(p) {
		if err := c.io.WaitWritable(); err != nil {
			c.errs.Queue().Push(err)
			return sent, c.errs.DrainFatal("wait_writable")
		}

		end := len(p)
		if c.ctx.Mode()&ModeEnablePartialWrite != 0 {
			end = min(sent+chunkSize, len(p))
		}

		n, err := c.io.Write(p[sent:end])
		if err != nil && !errqueue.IsRetryable(err) {
			if ferr := c.errs.DrainFatal("ssl_write"); ferr != nil {
				return sent, ferr
			}
			return sent, fmt.Errorf("ssl_write: %w", err)
		}
		if entries := c.errs.Drain("ssl_write"); len(entries) > 0 {
			return sent, fmt.Errorf("%w: %s", ErrWriteFailed, entries[0])
		}
		if n > 0 {
			sent += n
		}
	}

	c.logIO(log.DirectionOut, "write", p, StatusNone)
	return sent, nil
}

// Printf formats according to format and writes the result.
func (c *Conn) Printf(format string, args ...any) error {
	_, err := c.Write([]byte(fmt.Sprintf(format, args...)))
	return err
}

// WriteLine writes s followed by a newline.
func (c *Conn) WriteLine(s string) error {
	_, err := c.Write([]byte(s + "\n"))
	return err
}

// Seek supports only skipping forward from the current position, which
// consumes and discards offset bytes. It returns the new stream position.
func (c *Conn) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekCurrent || offset < 0 {
		return c.pos, &MisuseError{Op: "seek", Err: ErrUnsupportedSeek}
	}
	for offset > 0 {
		n := int(min(offset, chunkSize))
		got, err := c.ReadExact(make([]byte, n), n, 0)
		offset -= int64(got)
		if err != nil {
			return c.pos, err
		}
		if got < n {
			return c.pos, io.ErrUnexpectedEOF
		}
	}
	return c.pos, nil
}
