// Package stub: демо-провайдер анализа: случайный результат с искусственной задержкой.
package stub

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"ecovision/api/internal/analysis"
)

const (
	DefaultDelay       = 3 * time.Second
	inclusionThreshold = 0.3 // категория включается, если rand > 0.3 (p = 0.7)
	minConfidence      = 70
	confidenceSpread   = 30 // [70, 99]
	tipsPerCategory    = 2
)

type Engine struct {
	Delay time.Duration
	Now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func New(delay time.Duration, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &Engine{Delay: delay, Now: time.Now, rng: rng}
}

func (e *Engine) Name() string  { return "stub" }
func (e *Engine) Model() string { return "random" }

func (e *Engine) Analyze(ctx context.Context, _ analysis.Image) (analysis.Result, error) {
	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return analysis.Result{}, ctx.Err()
		case <-t.C:
		}
	}

	e.mu.Lock()
	cats := []analysis.Category{}
	for _, c := range analysis.Categories {
		if e.rng.Float64() > inclusionThreshold {
			cats = append(cats, c)
		}
	}
	risk := analysis.RiskLevels[e.rng.IntN(len(analysis.RiskLevels))]
	conf := e.rng.IntN(confidenceSpread) + minConfidence
	e.mu.Unlock()

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return analysis.NewResult(
		cats,
		risk,
		conf,
		analysis.Recommend(cats, tipsPerCategory),
		analysis.Summarize(cats, risk),
		now(),
	), nil
}
