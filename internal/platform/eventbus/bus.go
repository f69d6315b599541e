package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxHandlersPerPattern caps registrations under one pattern.
	MaxHandlersPerPattern = 100
	// MaxHandlersTotal caps registrations across the whole bus.
	MaxHandlersTotal = 1000
	// AsyncHook is the job queue hook that re-enters ProcessAsyncEvent.
	AsyncHook = "eventbus.process_async"
)

// Handler reacts to one event. Errors and panics are isolated per handler.
type Handler func(ctx context.Context, e Event) error

// ListenerID identifies one registration for RemoveListener.
type ListenerID uint64

// JobDispatcher is the subset of the job queue the bus needs for async events.
type JobDispatcher interface {
	Enqueue(ctx context.Context, hook string, args map[string]any, delay time.Duration, priority int) (uuid.UUID, error)
}

// HandlerError records a failed or panicking handler. It is logged and
// counted, never returned to the publisher.
type HandlerError struct {
	Event   string
	Pattern string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q (pattern %q): %v", e.Event, e.Pattern, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Outcome summarises one dispatch.
type Outcome struct {
	Async   bool
	JobID   uuid.UUID
	Handled int
	Failed  []*HandlerError
}

type registration struct {
	id       ListenerID
	pattern  string
	priority int
	handler  Handler
}

type asyncConfig struct {
	priority int
	delay    time.Duration
}

// Bus routes events to handlers registered by exact name or '*' wildcard.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]registration
	total    int
	nextID   ListenerID
	async    map[string]asyncConfig
	queue    JobDispatcher

	patternMu sync.Mutex
	patterns  map[string]*regexp.Regexp
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger.With("component", "event_bus"),
		handlers: make(map[string][]registration),
		async:    make(map[string]asyncConfig),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Listen registers handler under pattern. It returns ok=false when the
// pattern already holds MaxHandlersPerPattern registrations or the bus holds
// MaxHandlersTotal. Lower priority runs first; equal priorities keep
// registration order.
func (b *Bus) Listen(pattern string, handler Handler, priority int) (ListenerID, bool) {
	if pattern == "" || handler == nil {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.handlers[pattern]) >= MaxHandlersPerPattern || b.total >= MaxHandlersTotal {
		listenersRejectedCounter.Inc()
		b.logger.Error("Handler limit reached, listener rejected",
			"pattern", pattern, "pattern_count", len(b.handlers[pattern]), "total", b.total)
		return 0, false
	}

	b.nextID++
	regs := append(b.handlers[pattern], registration{
		id:       b.nextID,
		pattern:  pattern,
		priority: priority,
		handler:  handler,
	})
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority < regs[j].priority })
	b.handlers[pattern] = regs
	b.total++
	registeredHandlersGauge.Inc()
	return b.nextID, true
}

// RemoveListener unregisters one listener. It reports whether it was found.
func (b *Bus) RemoveListener(pattern string, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[pattern]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		regs = append(regs[:i:i], regs[i+1:]...)
		if len(regs) == 0 {
			delete(b.handlers, pattern)
		} else {
			b.handlers[pattern] = regs
		}
		b.total--
		registeredHandlersGauge.Dec()
		return true
	}
	return false
}

// ClearHandlersFor drops every registration under the exact key eventName
// and returns how many were removed.
func (b *Bus) ClearHandlersFor(eventName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.handlers[eventName])
	delete(b.handlers, eventName)
	b.total -= n
	registeredHandlersGauge.Sub(float64(n))
	return n
}

func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	registeredHandlersGauge.Sub(float64(b.total))
	b.handlers = make(map[string][]registration)
	b.total = 0
}

func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// HasListeners reports whether any pattern matches eventName.
func (b *Bus) HasListeners(eventName string) bool {
	return len(b.matching(eventName)) > 0
}

// ConfigureAsync routes the exact event name through the job queue.
func (b *Bus) ConfigureAsync(eventName string, priority int, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.async[eventName] = asyncConfig{priority: priority, delay: delay}
}

// AttachQueue enables async dispatch. Without a queue every event runs inline.
func (b *Bus) AttachQueue(q JobDispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = q
}

// Dispatch runs matching handlers inline, or enqueues the event when its
// name is configured async and a queue is attached. A failed enqueue falls
// back to inline dispatch so the event is never dropped.
func (b *Bus) Dispatch(ctx context.Context, e Event) Outcome {
	b.mu.RLock()
	cfg, isAsync := b.async[e.Name]
	queue := b.queue
	b.mu.RUnlock()

	if isAsync && queue != nil {
		args := map[string]any{"event_name": e.Name, "event_data": e.ToMap()}
		jobID, err := queue.Enqueue(ctx, AsyncHook, args, cfg.delay, cfg.priority)
		if err == nil && jobID != uuid.Nil {
			eventsDispatchedCounter.WithLabelValues("async").Inc()
			b.logger.DebugContext(ctx, "Event queued for async dispatch", "event", e.Name, "event_id", e.ID, "job_id", jobID)
			return Outcome{Async: true, JobID: jobID}
		}
		b.logger.WarnContext(ctx, "Async enqueue failed, dispatching inline", "event", e.Name, "event_id", e.ID, "error", err)
		eventsDispatchedCounter.WithLabelValues("async_fallback").Inc()
		return b.run(ctx, e)
	}

	eventsDispatchedCounter.WithLabelValues("sync").Inc()
	return b.run(ctx, e)
}

// ProcessAsyncEvent is the job queue re-entry point for events that were
// dispatched async.
func (b *Bus) ProcessAsyncEvent(ctx context.Context, eventName string, eventData map[string]any) (Outcome, error) {
	e, err := EventFromMap(eventName, eventData)
	if err != nil {
		return Outcome{}, err
	}
	eventsDispatchedCounter.WithLabelValues("async_reentry").Inc()
	return b.run(ctx, e), nil
}

// HandleAsyncJob adapts ProcessAsyncEvent to a job handler for AsyncHook.
// Handler failures stay isolated and do not fail the job.
func (b *Bus) HandleAsyncJob(ctx context.Context, args map[string]any) error {
	name, _ := args["event_name"].(string)
	data, _ := args["event_data"].(map[string]any)
	if name == "" {
		return fmt.Errorf("eventbus: async job args missing event_name")
	}
	_, err := b.ProcessAsyncEvent(ctx, name, data)
	return err
}

func (b *Bus) run(ctx context.Context, e Event) Outcome {
	out := Outcome{}
	for _, r := range b.matching(e.Name) {
		out.Handled++
		if err := b.invoke(ctx, r, e); err != nil {
			out.Failed = append(out.Failed, err)
		}
	}
	return out
}

func (b *Bus) invoke(ctx context.Context, r registration, e Event) (herr *HandlerError) {
	defer func() {
		if p := recover(); p != nil {
			herr = &HandlerError{Event: e.Name, Pattern: r.pattern, Err: fmt.Errorf("panic: %v", p)}
			b.logger.ErrorContext(ctx, "Event handler panicked", "event", e.Name, "event_id", e.ID,
				"pattern", r.pattern, "panic", p, "stack", string(debug.Stack()))
		}
		if herr != nil {
			handlerFailuresCounter.WithLabelValues(e.Name).Inc()
		}
	}()

	if err := r.handler(ctx, e); err != nil {
		b.logger.ErrorContext(ctx, "Event handler failed", "event", e.Name, "event_id", e.ID, "pattern", r.pattern, "error", err)
		return &HandlerError{Event: e.Name, Pattern: r.pattern, Err: err}
	}
	return nil
}

// matching snapshots the registrations for eventName, merged across
// patterns and ordered by priority then registration order. Handlers run
// outside the lock so they may register or remove listeners.
func (b *Bus) matching(eventName string) []registration {
	b.mu.RLock()
	var out []registration
	for pattern, regs := range b.handlers {
		if pattern == eventName || (strings.Contains(pattern, "*") && b.compile(pattern).MatchString(eventName)) {
			out = append(out, regs...)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].id < out[j].id
	})
	return out
}

func (b *Bus) compile(pattern string) *regexp.Regexp {
	b.patternMu.Lock()
	defer b.patternMu.Unlock()
	if re, ok := b.patterns[pattern]; ok {
		return re
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re := regexp.MustCompile(expr)
	b.patterns[pattern] = re
	return re
}
