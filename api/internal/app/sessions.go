package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ecovision/api/internal/history"
	"ecovision/api/internal/store"
)

const DefaultSessionIdleTTL = 30 * time.Minute

// Sessions: контроллеры по scope (чат Telegram, клиент HTTP API).
// У каждого scope свой документ истории в общем KV.
// Неактивные сессии убирает Sweep; история остаётся в KV.
type Sessions struct {
	base Options
	kv   store.KV
	m    sync.Map // scope -> *sessionEntry
	now  func() time.Time
}

type sessionEntry struct {
	c    *Controller
	seen atomic.Int64 // unix nano последнего обращения
}

// NewSessions: base задаёт общие зависимости; Scope, History и Rand
// проставляются на каждый scope.
func NewSessions(base Options, kv store.KV) *Sessions {
	return &Sessions{base: base, kv: kv, now: time.Now}
}

func (s *Sessions) touch(e *sessionEntry) *Controller {
	e.seen.Store(s.now().UnixNano())
	return e.c
}

// Get возвращает контроллер scope, создавая его при первом обращении.
func (s *Sessions) Get(scope string) *Controller {
	if v, ok := s.m.Load(scope); ok {
		return s.touch(v.(*sessionEntry))
	}
	v, _ := s.m.LoadOrStore(scope, &sessionEntry{c: s.build(scope)})
	return s.touch(v.(*sessionEntry))
}

// Lookup не создаёт контроллер.
func (s *Sessions) Lookup(scope string) (*Controller, bool) {
	v, ok := s.m.Load(scope)
	if !ok {
		return nil, false
	}
	return s.touch(v.(*sessionEntry)), true
}

// Create заводит новую сессию со случайным id.
func (s *Sessions) Create() (string, *Controller) {
	id := uuid.NewString()
	return id, s.Get(id)
}

func (s *Sessions) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Sweep удаляет сессии, к которым не обращались дольше idle.
// Сессия с идущим анализом остаётся. Возвращает число удалённых.
func (s *Sessions) Sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := now.Add(-idle).UnixNano()
	n := 0
	s.m.Range(func(k, v any) bool {
		e := v.(*sessionEntry)
		if e.seen.Load() >= cutoff || e.c.State().Analyzing {
			return true
		}
		if s.m.CompareAndDelete(k, e) {
			n++
		}
		return true
	})
	return n
}

// RunJanitor вызывает Sweep каждые idle/2 до отмены ctx.
func (s *Sessions) RunJanitor(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	t := time.NewTicker(idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(s.now(), idle); n > 0 && s.base.Logger != nil {
				s.base.Logger.Info("idle sessions evicted", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *Sessions) build(scope string) *Controller {
	o := s.base
	o.Scope = scope
	o.Rand = nil
	log := o.Logger
	o.History = history.NewStore(s.kv, history.KeyFor(scope), log)
	return New(o)
}
