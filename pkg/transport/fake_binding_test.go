package transport

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/retry"
)

// step is one scripted binding read.
type step struct {
	data []byte
	err  error

	// push is queued without being returned, like a library that records
	// an error yet reports success.
	push error
}

func data(s string) step  { return step{data: []byte(s)} }
func fail(err error) step { return step{err: err} }
func wouldBlock() step    { return step{err: errqueue.ErrWouldBlock} }
func emptyRead() step     { return step{} }
func endOfStream() step   { return step{err: io.EOF} }

// fakeBinding replays scripted reads and records writes. Errors other than
// would-block and EOF are pushed onto the queue, as Session does.
type fakeBinding struct {
	q *errqueue.Queue

	mu    sync.Mutex
	reads []step

	writes    [][]byte
	writeMax  int
	writeErrs []error

	readableWaits int
	writableWaits int
}

func (f *fakeBinding) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	s := f.reads[0]
	n := copy(p, s.data)
	if n < len(s.data) {
		f.reads[0].data = s.data[n:]
	} else {
		f.reads = f.reads[1:]
	}
	if s.push != nil {
		f.q.Push(s.push)
	}
	if s.err != nil && s.err != io.EOF && !errqueue.IsWouldBlock(s.err) {
		f.q.Push(s.err)
	}
	return n, s.err
}

func (f *fakeBinding) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			f.q.Push(err)
			return 0, err
		}
	}
	n := len(p)
	if f.writeMax > 0 {
		n = min(n, f.writeMax)
	}
	f.writes = append(f.writes, append([]byte(nil), p[:n]...))
	return n, nil
}

func (f *fakeBinding) WaitReadable(time.Duration) error {
	f.mu.Lock()
	f.readableWaits++
	f.mu.Unlock()
	return nil
}

func (f *fakeBinding) WaitWritable() error {
	f.mu.Lock()
	f.writableWaits++
	f.mu.Unlock()
	return nil
}

func (f *fakeBinding) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Join(f.writes, nil)
}

type drainRecord struct {
	op      string
	entries []errqueue.Entry
	fatal   bool
}

// newFakeConn returns an established Conn whose session is replaced by a
// fakeBinding replaying steps.
func newFakeConn(t *testing.T, m *Material, steps ...step) (*Conn, *fakeBinding, *[]drainRecord) {
	t.Helper()
	if m == nil {
		m = DefaultMaterial()
	}

	var (
		mu     sync.Mutex
		drains []drainRecord
	)
	m.ErrorCallback = func(_ *Conn, op string, entries []errqueue.Entry, fatal bool) {
		mu.Lock()
		drains = append(drains, drainRecord{op: op, entries: entries, fatal: fatal})
		mu.Unlock()
	}

	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	c := &Conn{
		id:       "test",
		raw:      a,
		ctx:      &Context{material: m, mode: ModeEnablePartialWrite | ModeReleaseBuffers},
		material: m,
		accepted: true,
		state:    StateEstablished,
	}
	c.errs = errqueue.NewAdapter(nil, c.observe)
	if m.ReadMode == ReadBusy {
		c.pacing = retry.New(retry.ReadPacing)
	}

	f := &fakeBinding{q: c.errs.Queue(), reads: steps}
	c.io = f
	return c, f, &drains
}
