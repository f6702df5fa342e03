// Package circuitbreaker tracks consecutive delivery failures per
// destination and blocks traffic to hosts that keep failing.
//
// A breaker starts Closed. Once failures reach the threshold it trips
// to Open and rejects requests until the cooldown passes, at which
// point it moves to HalfOpen and lets probe requests through. A
// success closes it again; a failure re-opens it.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the lifecycle position of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config tunes a breaker. Non-positive fields use the defaults.
type Config struct {
	Threshold int           // consecutive failures before tripping (default 5)
	Cooldown  time.Duration // how long Open lasts before probing (default 30s)
}

// DefaultConfig returns the stock threshold and cooldown.
func DefaultConfig() Config {
	return Config{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker guards a single destination.
type Breaker struct {
	mu        sync.Mutex
	state     State
	fails     int
	threshold int
	trippedAt time.Time
	cooldown  time.Duration
}

// New builds a breaker from cfg, applying defaults for unset fields.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{threshold: cfg.Threshold, cooldown: cfg.Cooldown}
}

// Allow reports whether a request may proceed. When an Open breaker's
// cooldown has elapsed it transitions to HalfOpen and allows a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.trippedAt) > b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	b.state = Closed
}

// RecordFailure extends the failure streak. A failed half-open probe
// re-opens the breaker immediately regardless of the count.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fails++
	b.trippedAt = time.Now()

	if b.state == HalfOpen || b.fails >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the length of the current failure streak.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fails
}

// Reset forces the breaker back to Closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fails = 0
}
