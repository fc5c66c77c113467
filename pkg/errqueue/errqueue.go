package errqueue

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// ErrFatal is matched by every *FatalError.
var ErrFatal = errors.New("fatal TLS library error")

// Entry is one drained error.
type Entry struct {
	// Code is the classified error code (see CodeOf).
	Code uint32 `cbor:"1,keyasint"`

	// Message is the library's description of the error.
	Message string `cbor:"2,keyasint"`

	err error
}

// String formats the entry the way it is reported to operators.
func (e Entry) String() string {
	return fmt.Sprintf("error:%08X:%s:%s", e.Code, Describe(e.Code), e.Message)
}

// Err returns the original error, if the entry was pushed from one.
func (e Entry) Err() error {
	return e.err
}

// Queue accumulates errors reported by library calls until they are drained.
// A Queue belongs to one connection or listener.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push records err. Would-block conditions are not errors and are dropped.
func (q *Queue) Push(err error) {
	if err == nil || IsWouldBlock(err) {
		return
	}
	q.PushEntry(Entry{Code: CodeOf(err), Message: err.Error(), err: err})
}

// PushEntry records a pre-classified entry.
func (q *Queue) PushEntry(e Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) take() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	entries := q.entries
	q.entries = nil
	return entries
}

// Observer is told about every non-empty drain.
type Observer func(op string, entries []Entry, fatal bool)

// Adapter pairs a queue with the observer that must see its drains.
type Adapter struct {
	queue    *Queue
	observer Observer
}

// NewAdapter creates an adapter. A nil queue gets a fresh one; a nil observer
// is allowed.
func NewAdapter(q *Queue, obs Observer) *Adapter {
	if q == nil {
		q = NewQueue()
	}
	return &Adapter{queue: q, observer: obs}
}

// Queue returns the queue library calls push into.
func (a *Adapter) Queue() *Queue {
	return a.queue
}

// SetObserver replaces the observer.
func (a *Adapter) SetObserver(obs Observer) {
	a.observer = obs
}

// Drain empties the queue and returns what was pending. The observer is called
// with fatal=false when the result is non-empty.
func (a *Adapter) Drain(op string) []Entry {
	entries := a.queue.take()
	if len(entries) > 0 && a.observer != nil {
		a.observer(op, entries, false)
	}
	return entries
}

// DrainFatal empties the queue and, when anything was pending, returns a
// *FatalError naming op and the caller's source position. The observer is
// called with fatal=true first.
func (a *Adapter) DrainFatal(op string) error {
	entries := a.queue.take()
	if len(entries) == 0 {
		return nil
	}
	if a.observer != nil {
		a.observer(op, entries, true)
	}
	fe := &FatalError{Op: op, Entries: entries}
	if _, file, line, ok := runtime.Caller(1); ok {
		fe.File = filepath.Base(file)
		fe.Line = line
	}
	return fe
}

// FatalError is a non-empty drain that aborts the current operation.
type FatalError struct {
	Op      string
	File    string
	Line    int
	Entries []Entry
}

func (e *FatalError) Error() string {
	msgs := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		msgs = append(msgs, entry.String())
	}
	return fmt.Sprintf("%s: %s at %s:%d: %s", ErrFatal, e.Op, e.File, e.Line, strings.Join(msgs, "; "))
}

// Unwrap exposes ErrFatal and the original errors for errors.Is/As.
func (e *FatalError) Unwrap() []error {
	errs := []error{ErrFatal}
	for _, entry := range e.Entries {
		if entry.err != nil {
			errs = append(errs, entry.err)
		}
	}
	return errs
}
