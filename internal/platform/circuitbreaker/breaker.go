package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Config tunes one breaker.
type Config struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	// IsFailure decides which call results count against the breaker.
	// Defaults to any non-nil error except context cancellation.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a persisted closed/open/half-open guard around one dependency.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	store  StateStore
	logger *slog.Logger
	now    func() time.Time

	loaded bool
	snap   Snapshot
}

type transition struct {
	from, to State
}

func New(cfg Config, store StateStore, logger *slog.Logger, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if store == nil {
		store = NewMemoryStateStore()
	}
	b := &Breaker{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "circuit_breaker", "service", cfg.Name),
		now:    time.Now,
		snap:   Snapshot{ServiceName: cfg.Name, State: Closed, StateName: Closed.String()},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Name returns the guarded service name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Execute runs primary unless the circuit is open. When it is open and the
// cooldown has not elapsed, fallback receives an *OpenError immediately; a nil
// fallback returns that error.
func (b *Breaker) Execute(ctx context.Context, primary func(context.Context) error, fallback func(context.Context, error) error) error {
	openErr, tr := b.beforeCall(ctx)
	b.notify(tr)
	if openErr != nil {
		breakerShortCircuits.WithLabelValues(b.cfg.Name).Inc()
		if fallback != nil {
			return fallback(ctx, openErr)
		}
		return openErr
	}

	err := primary(ctx)
	b.notify(b.afterCall(ctx, err))
	return err
}

func (b *Breaker) beforeCall(ctx context.Context) (*OpenError, *transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLoaded(ctx)

	if b.snap.State != Open {
		return nil, nil
	}
	remaining := b.remainingCooldown()
	if remaining > 0 {
		return &OpenError{Service: b.cfg.Name, RetryAfter: remaining}, nil
	}
	tr := b.transitionTo(HalfOpen)
	b.persist(ctx)
	return nil, tr
}

func (b *Breaker) afterCall(ctx context.Context, err error) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	var tr *transition
	if b.cfg.IsFailure(err) {
		b.snap.FailureCount++
		b.snap.LastFailureAt = &now
		switch b.snap.State {
		case Closed:
			if b.snap.FailureCount >= b.cfg.FailureThreshold {
				tr = b.transitionTo(Open)
			}
		case HalfOpen:
			tr = b.transitionTo(Open)
		}
	} else {
		b.snap.SuccessCount++
		b.snap.LastSuccessAt = &now
		switch b.snap.State {
		case Closed:
			b.snap.FailureCount = 0
		case HalfOpen:
			tr = b.transitionTo(Closed)
		}
	}
	b.persist(ctx)
	return tr
}

// transitionTo must be called with mu held.
func (b *Breaker) transitionTo(to State) *transition {
	from := b.snap.State
	if from == to {
		return nil
	}
	b.snap.State = to
	b.snap.StateName = to.String()
	switch to {
	case Open:
		now := b.now().UTC()
		b.snap.OpenedAt = &now
	case Closed:
		b.snap.FailureCount = 0
		b.snap.OpenedAt = nil
	}
	b.logger.Warn("Circuit breaker state change", "from", from.String(), "to", to.String(), "failure_count", b.snap.FailureCount)
	return &transition{from: from, to: to}
}

func (b *Breaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	breakerTransitions.WithLabelValues(b.cfg.Name, tr.to.String()).Inc()
	breakerState.WithLabelValues(b.cfg.Name).Set(float64(tr.to))
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, tr.from, tr.to)
	}
}

// ensureLoaded must be called with mu held. A failed load is retried on the next call.
func (b *Breaker) ensureLoaded(ctx context.Context) {
	if b.loaded {
		return
	}
	snap, err := b.store.Load(ctx, b.cfg.Name)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to load circuit breaker state; assuming closed", "error", err)
		return
	}
	b.loaded = true
	if snap != nil {
		b.snap = *snap
		b.snap.ServiceName = b.cfg.Name
		b.snap.StateName = b.snap.State.String()
		breakerState.WithLabelValues(b.cfg.Name).Set(float64(b.snap.State))
	}
}

// persist must be called with mu held. Store failures never fail the call.
func (b *Breaker) persist(ctx context.Context) {
	cp := b.snap
	if err := b.store.Save(ctx, &cp); err != nil {
		b.logger.ErrorContext(ctx, "Failed to persist circuit breaker state", "error", err, "state", b.snap.State.String())
	}
}

func (b *Breaker) remainingCooldown() time.Duration {
	if b.snap.OpenedAt == nil {
		return 0
	}
	return b.cfg.Cooldown - b.now().Sub(*b.snap.OpenedAt)
}

// IsAvailable reports whether a call would be attempted right now. It never
// changes state.
func (b *Breaker) IsAvailable(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLoaded(ctx)
	return b.snap.State != Open || b.remainingCooldown() <= 0
}

// Snapshot returns a copy of the current state.
func (b *Breaker) Snapshot(ctx context.Context) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLoaded(ctx)
	return b.snap
}

// Reset forces the breaker closed with zeroed counters.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	b.ensureLoaded(ctx)
	tr := b.transitionTo(Closed)
	b.snap.FailureCount = 0
	b.snap.SuccessCount = 0
	b.persist(ctx)
	b.mu.Unlock()
	b.notify(tr)
}
