package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config: только circuit breaker: внешние вызовы анализа не ретраятся.
type Config struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	HalfOpenMax  uint32
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MinRequests:  5,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
		HalfOpenMax:  1,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MinRequests == 0 {
		out.MinRequests = def.MinRequests
	}
	if out.FailureRatio <= 0 || out.FailureRatio > 1 {
		out.FailureRatio = def.FailureRatio
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = def.OpenTimeout
	}
	if out.HalfOpenMax == 0 {
		out.HalfOpenMax = def.HalfOpenMax
	}
	return out
}

// Breakers: по одному breaker на провайдера.
type Breakers struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*gobreaker.CircuitBreaker[any]
}

func NewBreakers(cfg Config) *Breakers {
	return &Breakers{cfg: cfg.normalize(), m: map[string]*gobreaker.CircuitBreaker[any]{}}
}

// Do выполняет fn один раз. countsAsFailure решает, портит ли ошибка статистику breaker'а
// (например, отмена контекста клиентом: не портит).
func (b *Breakers) Do(name string, fn func() error, countsAsFailure func(error) bool) error {
	if b == nil || !b.cfg.Enabled {
		return fn()
	}
	_, err := b.get(name, countsAsFailure).Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (b *Breakers) get(name string, countsAsFailure func(error) bool) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[name]; ok {
		return cb
	}
	cfg := b.cfg
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if countsAsFailure == nil {
				return false
			}
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	b.m[name] = cb
	return cb
}

func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
