package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestDoCallsOnceWithoutRetry(t *testing.T) {
	b := NewBreakers(Config{Enabled: true, MinRequests: 10})
	calls := 0
	boom := errors.New("boom")
	err := b.Do("gemini", func() error {
		calls++
		return boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoOpensAfterFailures(t *testing.T) {
	b := NewBreakers(Config{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenTimeout:  time.Minute,
		HalfOpenMax:  1,
	})
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Do("gemini", func() error { return boom }, nil)
	}
	err := b.Do("gemini", func() error {
		t.Fatalf("open circuit must not call the operation")
		return nil
	}, nil)
	if !IsOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// другой провайдер не затронут
	if err := b.Do("openai", func() error { return nil }, nil); err != nil {
		t.Fatalf("unexpected error for other provider: %v", err)
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	b := NewBreakers(Config{Enabled: true, MinRequests: 1, FailureRatio: 0.5})
	ignored := errors.New("cancelled")
	for i := 0; i < 3; i++ {
		_ = b.Do("p", func() error { return ignored }, func(err error) bool { return !errors.Is(err, ignored) })
	}
	if err := b.Do("p", func() error { return nil }, nil); err != nil {
		t.Fatalf("breaker should stay closed, got %v", err)
	}
}

func TestDisabledPassesThrough(t *testing.T) {
	var b *Breakers
	if err := b.Do("p", func() error { return nil }, nil); err != nil {
		t.Fatalf("nil breakers should pass through: %v", err)
	}
}
