package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

func TestReadUntilLength(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("hello world"), endOfStream())

	status, got, err := c.ReadUntil(5, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusLength, status)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, 6, c.Buffered())

	status, got, err = c.ReadUntil(0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Equal(t, " world", string(got))
	assert.Zero(t, c.Buffered())
}

func TestReadUntilNonGreedyFill(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("abcdefgh"), endOfStream())

	status, got, err := c.ReadUntil(4, nil, true)
	require.NoError(t, err)
	assert.Equal(t, StatusFill, status)
	assert.Equal(t, "abcd", string(got))
	assert.Zero(t, c.Buffered(), "non-greedy refill must not read past the count")

	status, got, err = c.ReadUntil(4, nil, true)
	require.NoError(t, err)
	assert.Equal(t, StatusFill, status)
	assert.Equal(t, "efgh", string(got))
}

func TestReadUntilDelimiterKeepsLeftover(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("line1\nli"), data("ne2\n"), endOfStream())

	status, got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusDelimiter, status)
	assert.Equal(t, "line1\n", string(got))

	status, got, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusDelimiter, status)
	assert.Equal(t, "line2\n", string(got))

	status, got, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Empty(t, got)
}

func TestReadUntilRegexpDelimiter(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("HEAD\r\n\r\nbody"), endOfStream())

	status, got, err := c.ReadUntil(0, regexp.MustCompile(`\r\n\r\n`), false)
	require.NoError(t, err)
	assert.Equal(t, StatusDelimiter, status)
	assert.Equal(t, "HEAD\r\n\r\n", string(got))
	assert.Equal(t, 4, c.Buffered())
}

func TestReadUntilLengthBeforeDelimiter(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("ab\ncd"), endOfStream())

	status, got, err := c.ReadUntil(2, lineDelimiter, false)
	require.NoError(t, err)
	assert.Equal(t, StatusLength, status)
	assert.Equal(t, "ab", string(got))
}

func TestReadLineMaxLength(t *testing.T) {
	m := DefaultMaterial()
	m.MaxGetlineLength = 3
	c, _, _ := newFakeConn(t, m, data("abcdef\n"), endOfStream())

	status, got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusLength, status)
	assert.Equal(t, "abc", string(got))
}

func TestReadLinesCollectsPartialTail(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("a\nb\n"), data("c"), endOfStream())

	lines, err := c.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "a\n", string(lines[0]))
	assert.Equal(t, "b\n", string(lines[1]))
	assert.Equal(t, "c", string(lines[2]))
}

func TestTwoEmptyReadsEndStream(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("xy"), emptyRead(), emptyRead(), data("never"))

	status, got, err := c.ReadUntil(0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Equal(t, "xy", string(got))

	status, got, err = c.ReadUntil(0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Empty(t, got)
}

func TestSingleEmptyReadDoesNotEndStream(t *testing.T) {
	c, _, _ := newFakeConn(t, nil,
		emptyRead(), data("ab"), emptyRead(), data("cd"), endOfStream())

	status, got, err := c.ReadUntil(0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Equal(t, "abcd", string(got))
}

func TestEOFEndsStreamImmediately(t *testing.T) {
	c, f, _ := newFakeConn(t, nil, data("partial"), endOfStream(), data("after"))

	status, got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Equal(t, "partial", string(got))

	// The binding is not consulted again.
	status, got, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Empty(t, got)
	assert.Len(t, f.reads, 1)
}

func TestFatalReadErrorDrainsToCallback(t *testing.T) {
	c, _, drains := newFakeConn(t, nil, data("ab"), fail(unix.ECONNRESET))

	_, got, err := c.ReadLine()
	require.Error(t, err)
	assert.Equal(t, "ab", string(got))

	var fe *errqueue.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ssl_read", fe.Op)
	assert.ErrorIs(t, err, unix.ECONNRESET)
	assert.ErrorIs(t, err, errqueue.ErrFatal)

	require.Len(t, *drains, 1)
	d := (*drains)[0]
	assert.True(t, d.fatal)
	assert.Equal(t, "ssl_read", d.op)
	assert.Equal(t, fe.Entries, d.entries)
}

func TestInterruptedReadIsRetried(t *testing.T) {
	c, _, drains := newFakeConn(t, nil, fail(unix.EINTR), data("ok\n"), endOfStream())

	status, got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusDelimiter, status)
	assert.Equal(t, "ok\n", string(got))

	require.Len(t, *drains, 1)
	assert.False(t, (*drains)[0].fatal)
	assert.Equal(t, "ssl_read", (*drains)[0].op)
}

func TestQueuedErrorAbortsRefill(t *testing.T) {
	alert := errors.New("unexpected message")
	c, _, drains := newFakeConn(t, nil,
		step{data: []byte("ab"), push: alert}, data("cd\n"), endOfStream())

	status, got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)
	assert.Equal(t, "ab", string(got))

	require.Len(t, *drains, 1)
	assert.False(t, (*drains)[0].fatal)
	assert.Equal(t, alert.Error(), (*drains)[0].entries[0].Message)
}

// chunked delivers s one byte at a time with a would-block before each byte.
func chunked(s string) []step {
	var steps []step
	for i := range len(s) {
		steps = append(steps, wouldBlock(), data(s[i:i+1]))
	}
	return steps
}

func TestForwardProgressSlowDelivery(t *testing.T) {
	for _, mode := range []ReadMode{ReadReadiness, ReadBusy} {
		t.Run(mode.String(), func(t *testing.T) {
			m := DefaultMaterial()
			m.ReadMode = mode
			steps := append(chunked("hello\nworld\n"), endOfStream())
			c, f, _ := newFakeConn(t, m, steps...)

			lines, err := c.ReadLines()
			require.NoError(t, err)
			require.Len(t, lines, 2)
			assert.Equal(t, "hello\n", string(lines[0]))
			assert.Equal(t, "world\n", string(lines[1]))

			if mode == ReadReadiness {
				assert.Positive(t, f.readableWaits)
			} else {
				assert.Zero(t, f.readableWaits)
			}
		})
	}
}

func TestReadReturnsBufferedThenEOF(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("abcdef"), endOfStream())

	p := make([]byte, 4)
	n, err := c.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))

	n, err = c.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(p[:n]))

	n, err = c.Read(p)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadAllThroughIOReader(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("one "), wouldBlock(), data("two"), endOfStream())

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(got))
}

func TestReadExact(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("abc"), data("defg"), endOfStream())

	p := make([]byte, 8)
	n, err := c.ReadExact(p, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", string(p[2:7]))

	_, err = c.ReadExact(p, 8, 1)
	var me *MisuseError
	assert.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestSeek(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("abcdef"), endOfStream())

	for _, tc := range []struct {
		name   string
		offset int64
		whence int
	}{
		{"start", 0, io.SeekStart},
		{"end", 0, io.SeekEnd},
		{"backwards", -1, io.SeekCurrent},
	} {
		_, err := c.Seek(tc.offset, tc.whence)
		assert.ErrorIs(t, err, ErrUnsupportedSeek, tc.name)
	}

	pos, err := c.Seek(3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	p := make([]byte, 8)
	n, err := c.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "def", string(p[:n]))

	pos, err = c.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
}

func TestSeekPastEnd(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("ab"), endOfStream())

	pos, err := c.Seek(10, io.SeekCurrent)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int64(2), pos)
}

func TestWritePartialRecords(t *testing.T) {
	c, f, _ := newFakeConn(t, nil)

	payload := bytes.Repeat([]byte("0123456789"), 4000)
	n, err := c.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.Len(t, f.writes, 3)
	assert.Len(t, f.writes[0], chunkSize)
	assert.Len(t, f.writes[1], chunkSize)
	assert.Len(t, f.writes[2], len(payload)-2*chunkSize)
	assert.Equal(t, payload, f.written())
	assert.Equal(t, 3, f.writableWaits)
}

func TestWriteWithoutPartialMode(t *testing.T) {
	c, f, _ := newFakeConn(t, nil)
	c.ctx.mode = ModeReleaseBuffers

	payload := bytes.Repeat([]byte{'x'}, 3*chunkSize)
	_, err := c.Write(payload)
	require.NoError(t, err)
	require.Len(t, f.writes, 1)
	assert.Equal(t, payload, f.written())
}

func TestWriteShortProgress(t *testing.T) {
	c, f, _ := newFakeConn(t, nil)
	f.writeMax = 1000

	payload := bytes.Repeat([]byte{'y'}, 4500)
	n, err := c.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 4500, n)
	assert.Len(t, f.writes, 5)
	assert.Equal(t, payload, f.written())
}

func TestWriteRetryableErrorFailsWrite(t *testing.T) {
	c, f, drains := newFakeConn(t, nil)
	f.writeErrs = []error{nil, unix.ENOBUFS}

	payload := bytes.Repeat([]byte{'z'}, chunkSize+10)
	n, err := c.Write(payload)
	assert.Equal(t, chunkSize, n)
	assert.ErrorIs(t, err, ErrWriteFailed)

	var fe *errqueue.FatalError
	assert.False(t, errors.As(err, &fe))
	require.Len(t, *drains, 1)
	assert.False(t, (*drains)[0].fatal)
}

func TestWriteFatalErrorReachesCallback(t *testing.T) {
	c, f, drains := newFakeConn(t, nil)
	f.writeErrs = []error{unix.EPIPE}

	err := c.WriteLine("hello")
	var fe *errqueue.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ssl_write", fe.Op)
	assert.ErrorIs(t, err, unix.EPIPE)

	require.Len(t, *drains, 1)
	assert.True(t, (*drains)[0].fatal)
	assert.Equal(t, fe.Entries, (*drains)[0].entries)
}

func TestPrintf(t *testing.T) {
	c, f, _ := newFakeConn(t, nil)

	require.NoError(t, c.Printf("%s=%d\n", "answer", 42))
	assert.Equal(t, "answer=42\n", string(f.written()))
}

func TestClosedConnRefusesIO(t *testing.T) {
	c, _, _ := newFakeConn(t, nil, data("x"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.ReadLine()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, StateClosed, c.State())
}

func TestWrappedConnIsNotAccepted(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	c := Wrap(a, "echo")
	assert.False(t, c.Accepted())

	_, _, err := c.ReadLine()
	var me *MisuseError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ssl_init", me.Op)
	assert.ErrorIs(t, err, ErrNotAccepted)

	_, err = c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotAccepted)

	assert.NoError(t, c.Close())
}
