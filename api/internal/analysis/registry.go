package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownProvider  = errors.New("unknown analysis provider")
	ErrModelUnsupported = errors.New("provider does not support model selection")
)

// Registry: провайдеры по имени и дефолтный. Сессии переключаются по имени.
type Registry struct {
	mu  sync.RWMutex
	def string
	m   map[string]Provider
}

func NewRegistry(def Provider, others ...Provider) *Registry {
	r := &Registry{m: map[string]Provider{}}
	if def != nil {
		r.def = def.Name()
		r.m[def.Name()] = def
	}
	for _, p := range others {
		if p != nil {
			r.m[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.Name()] = p
	if r.def == "" {
		r.def = p.Name()
	}
}

func (r *Registry) Default() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[r.def]
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownProvider, name, strings.Join(r.namesLocked(), ", "))
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
