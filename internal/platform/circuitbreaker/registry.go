package circuitbreaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Registry hands out one Breaker per service name, all sharing a store and defaults.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	defaults  Config
	store     StateStore
	logger    *slog.Logger
	opts      []Option
	listeners []func(name string, from, to State)
}

func NewRegistry(defaults Config, store StateStore, logger *slog.Logger, opts ...Option) *Registry {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		store:    store,
		logger:   logger,
		opts:     opts,
	}
}

// OnStateChange subscribes fn to transitions of every breaker in the registry.
func (r *Registry) OnStateChange(fn func(name string, from, to State)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	cfg.Name = name
	cfg.OnStateChange = r.emit
	b := New(cfg, r.store, r.logger, r.opts...)
	r.breakers[name] = b
	return b
}

func (r *Registry) emit(name string, from, to State) {
	r.mu.Lock()
	listeners := append([]func(string, State, State){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(name, from, to)
	}
}

// Names lists the breakers created so far.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns every persisted state, preferring the live breaker's view.
func (r *Registry) Snapshots(ctx context.Context) ([]Snapshot, error) {
	stored, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Snapshot, len(stored))
	for _, s := range stored {
		byName[s.ServiceName] = *s
	}
	for _, name := range r.Names() {
		byName[name] = r.Get(name).Snapshot(ctx)
	}

	out := make([]Snapshot, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

// Reset closes the named breaker.
func (r *Registry) Reset(ctx context.Context, name string) {
	r.Get(name).Reset(ctx)
}

// IsAvailable reports whether the named breaker would attempt a call now.
func (r *Registry) IsAvailable(ctx context.Context, name string) bool {
	return r.Get(name).IsAvailable(ctx)
}
