// Package ratelimit bounds the frequency of sensitive wallet operations.
// State is in-memory only: a process restart resets all counters, which is
// acceptable because the limiter guards against in-session abuse, not
// durable throttling.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config describes the limit applied to one operation key.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Cooldown    time.Duration
}

// DefaultExportConfig is the policy applied to mnemonic/private key exports.
func DefaultExportConfig() Config {
	return Config{
		MaxAttempts: 3,
		Window:      60 * time.Second,
		Cooldown:    5 * time.Minute,
	}
}

// Error is returned when an operation exceeds its limit. RetryAfter tells
// the caller how long to wait before the next attempt can succeed.
type Error struct {
	Key        string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Second))
}

// entry tracks attempts in the current window for one key
type entry struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// Limiter is a process-wide sliding window counter keyed by operation name.
// One instance is constructed at startup and injected into every wallet
// manager so counters survive manager teardown within a session.
type Limiter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*entry
}

func New(clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// CheckLimit records an attempt for key and returns an *Error once the
// attempt count exceeds cfg.MaxAttempts within cfg.Window. Further calls
// keep failing until cfg.Cooldown has elapsed from the violating call,
// after which the window resets.
func (l *Limiter) CheckLimit(key string, cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	e, exists := l.entries[key]
	if !exists {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}

	// Still cooling down from a previous violation
	if !e.cooldownUntil.IsZero() {
		if now.Before(e.cooldownUntil) {
			return &Error{Key: key, RetryAfter: e.cooldownUntil.Sub(now)}
		}
		// Cooldown over, window resets
		e.count = 0
		e.windowStart = now
		e.cooldownUntil = time.Time{}
	}

	// Window expired without a violation
	if now.Sub(e.windowStart) >= cfg.Window {
		e.count = 0
		e.windowStart = now
	}

	e.count++
	if e.count > cfg.MaxAttempts {
		e.cooldownUntil = now.Add(cfg.Cooldown)
		return &Error{Key: key, RetryAfter: cfg.Cooldown}
	}

	return nil
}

// GetRemainingAttempts is a pure read used for audit log enrichment. It
// never mutates window state.
func (l *Limiter) GetRemainingAttempts(key string, cfg Config) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		return cfg.MaxAttempts
	}

	now := l.clock.Now()

	if !e.cooldownUntil.IsZero() {
		if now.Before(e.cooldownUntil) {
			return 0
		}
		return cfg.MaxAttempts
	}

	if now.Sub(e.windowStart) >= cfg.Window {
		return cfg.MaxAttempts
	}

	remaining := cfg.MaxAttempts - e.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the window state for key. Used by tests and admin surfaces.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}
