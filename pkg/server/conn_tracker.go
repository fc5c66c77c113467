package server

import (
	"io"
	"sync"
	"time"
)

// connTracker tracks served connections and when they were accepted.
// It backs the connection cap, the age reaper and shutdown.
type connTracker struct {
	mu    sync.Mutex
	conns map[io.Closer]time.Time
}

func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[io.Closer]time.Time),
	}
}

// Add registers a connection with the current time.
func (ct *connTracker) Add(conn io.Closer) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[conn] = time.Now()
}

// TryAdd registers conn unless limit connections are already tracked.
// limit <= 0 means no limit.
func (ct *connTracker) TryAdd(conn io.Closer, limit int) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if limit > 0 && len(ct.conns) >= limit {
		return false
	}
	ct.conns[conn] = time.Now()
	return true
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ct *connTracker) Remove(conn io.Closer) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, conn)
}

// CloseStale closes and removes all connections older than maxAge.
// Returns the number of connections closed.
func (ct *connTracker) CloseStale(maxAge time.Duration) int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	closed := 0
	for conn, added := range ct.conns {
		if added.Before(cutoff) {
			_ = conn.Close()
			delete(ct.conns, conn)
			closed++
		}
	}
	return closed
}

// CloseAll closes and removes all tracked connections.
func (ct *connTracker) CloseAll() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	closed := 0
	for conn := range ct.conns {
		_ = conn.Close()
		delete(ct.conns, conn)
		closed++
	}
	return closed
}

// Len returns the number of tracked connections.
func (ct *connTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}
