// Package retry paces retry loops with exponential backoff and jitter.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Default pacing used when a Config field is left zero.
const (
	DefaultInitial    = 50 * time.Microsecond
	DefaultMax        = 5 * time.Millisecond
	DefaultMultiplier = 2.0
	DefaultJitter     = 0.25
)

// Config customizes a Backoff. Zero fields take the defaults above.
type Config struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// ReadPacing spaces busy-retry refill passes on a connection with no data.
var ReadPacing = Config{Initial: DefaultInitial, Max: DefaultMax, Multiplier: DefaultMultiplier, Jitter: DefaultJitter}

// AcceptPacing spaces accept attempts after a transient accept failure
// (EMFILE, ENOBUFS).
var AcceptPacing = Config{Initial: 5 * time.Millisecond, Max: time.Second, Multiplier: DefaultMultiplier, Jitter: DefaultJitter}

// Backoff calculates exponential delays with jitter.
// It is safe for concurrent use.
type Backoff struct {
	mu sync.Mutex

	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int

	rng *rand.Rand
}

// New creates a Backoff from cfg.
func New(cfg Config) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitial
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Wait sleeps for Next() or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset returns to the initial delay. Call it once progress is made.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}
