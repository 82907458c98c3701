package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		Window:      60 * time.Second,
		Cooldown:    5 * time.Minute,
	}
}

func TestCheckLimit_AllowsUpToMax(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)

	for i := 0; i < 3; i++ {
		if err := l.CheckLimit("export", testConfig()); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}
}

func TestCheckLimit_FourthAttemptRejected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	for i := 0; i < 3; i++ {
		if err := l.CheckLimit("export", cfg); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}

	err := l.CheckLimit("export", cfg)
	if err == nil {
		t.Fatal("4th attempt should be rejected")
	}

	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *ratelimit.Error, got %T", err)
	}
	if rlErr.RetryAfter != cfg.Cooldown {
		t.Errorf("RetryAfter = %v, want %v", rlErr.RetryAfter, cfg.Cooldown)
	}

	if got := l.GetRemainingAttempts("export", cfg); got != 0 {
		t.Errorf("remaining attempts during cooldown = %d, want 0", got)
	}
}

func TestCheckLimit_CooldownRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	for i := 0; i < 4; i++ {
		l.CheckLimit("export", cfg)
	}

	// Mid-cooldown attempts keep failing with the remaining wait time
	clock.Advance(2 * time.Minute)
	err := l.CheckLimit("export", cfg)
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected rate limit error mid-cooldown, got %v", err)
	}
	if rlErr.RetryAfter != 3*time.Minute {
		t.Errorf("RetryAfter = %v, want 3m", rlErr.RetryAfter)
	}

	// Past the cooldown the window resets and attempts succeed again
	clock.Advance(3 * time.Minute)
	if err := l.CheckLimit("export", cfg); err != nil {
		t.Fatalf("attempt after cooldown should succeed: %v", err)
	}
	if got := l.GetRemainingAttempts("export", cfg); got != 2 {
		t.Errorf("remaining after cooldown reset = %d, want 2", got)
	}
}

func TestCheckLimit_WindowExpiryResetsCount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	for i := 0; i < 3; i++ {
		l.CheckLimit("export", cfg)
	}

	clock.Advance(61 * time.Second)
	if err := l.CheckLimit("export", cfg); err != nil {
		t.Fatalf("attempt in fresh window should succeed: %v", err)
	}
}

func TestCheckLimit_KeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	for i := 0; i < 4; i++ {
		l.CheckLimit("export_mnemonic", cfg)
	}

	if err := l.CheckLimit("export_private_key", cfg); err != nil {
		t.Fatalf("other key should not be affected: %v", err)
	}
}

func TestGetRemainingAttempts_PureRead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	if got := l.GetRemainingAttempts("export", cfg); got != 3 {
		t.Fatalf("remaining for unknown key = %d, want 3", got)
	}

	l.CheckLimit("export", cfg)

	// Repeated reads must not consume attempts
	for i := 0; i < 10; i++ {
		if got := l.GetRemainingAttempts("export", cfg); got != 2 {
			t.Fatalf("remaining = %d, want 2", got)
		}
	}
}

func TestReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock)
	cfg := testConfig()

	for i := 0; i < 4; i++ {
		l.CheckLimit("export", cfg)
	}

	l.Reset("export")
	if err := l.CheckLimit("export", cfg); err != nil {
		t.Fatalf("attempt after reset should succeed: %v", err)
	}
}
