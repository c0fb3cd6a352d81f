package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

var handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riffle",
	Subsystem: "event",
	Name:      "handler_failures_total",
	Help:      "Number of event handlers that returned an error or panicked.",
}, []string{"event"})

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. Handlers run asynchronously on a bounded pool.
type Bus struct {
	pool     chan struct{}
	timeout  time.Duration
	mu       sync.RWMutex
	handlers map[string][]Handler

	// inflight counts dispatched handlers that have not returned.
	state    sync.Mutex
	idle     *sync.Cond
	inflight int
	stopped  bool
}

type Option func(b *Bus)

// WithPoolSize bounds the number of handlers running at the same time.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.pool = make(chan struct{}, n)
		}
	}
}

// WithTimeout sets the deadline given to each handler.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		timeout:  defaultTimeout,
		handlers: make(map[string][]Handler),
	}
	b.idle = sync.NewCond(&b.state)

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish an event. Handlers outlive the caller's context cancellation.
// Once Stop has been called, events are still dispatched while any handler is
// running, so handlers may publish follow-up events. After the bus drains,
// published events are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		if !b.acquire() {
			slog.WarnContext(ctx, "event: bus stopped, event dropped", "event", e.Name())
			return
		}
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) acquire() bool {
	b.state.Lock()
	defer b.state.Unlock()

	if b.stopped && b.inflight == 0 {
		return false
	}

	b.inflight++
	return true
}

func (b *Bus) release() {
	b.state.Lock()
	defer b.state.Unlock()

	b.inflight--
	if b.inflight == 0 {
		b.idle.Broadcast()
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				handlerFailures.WithLabelValues(e.Name()).Inc()
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.release()
		}()

		if err := h(ctx, e); err != nil {
			handlerFailures.WithLabelValues(e.Name()).Inc()
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all handlers to finish, including handlers dispatched by
// events that running handlers publish.
func (b *Bus) Stop() {
	b.state.Lock()
	defer b.state.Unlock()

	b.stopped = true
	for b.inflight > 0 {
		b.idle.Wait()
	}
}
