package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"
)

const (
	componentOutbox    = "outbox"
	DefaultQueueSize   = 1024
	DefaultConcurrency = 8
	handlerTimeout     = 30 * time.Second
)

var ErrStopped = errors.New("outbox: bus stopped")

// envelope keeps the publisher's span so handlers continue the same trace.
type envelope struct {
	event domoutbox.Event
	span  trace.SpanContext
}

// Bus is an in-memory, non-durable event bus. Events are dispatched in publish order by a
// single loop; the handlers for one event run concurrently up to the concurrency cap.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	queue       chan envelope
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	loop        sync.WaitGroup
	concurrency int
	log         observability.Logger
}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan envelope, n)
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBus(logger observability.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan envelope, DefaultQueueSize),
		done:        make(chan struct{}),
		concurrency: DefaultConcurrency,
		log:         logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		b.loop.Add(1)
		go func() {
			defer b.loop.Done()
			b.dispatchLoop(bg)
		}()
		logctx.FromOr(ctx, b.log).Info("event_bus_started",
			observability.F("queue_size", cap(b.queue)),
			observability.F("concurrency", b.concurrency),
		)
	})
}

// Stop drains nothing: queued events that were not dispatched yet are dropped. It waits
// for the event currently being fanned out.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.cancel != nil {
			b.cancel()
		}
		b.loop.Wait()
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped",
			observability.F("dropped", len(b.queue)),
		)
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	env := envelope{event: e, span: trace.SpanContextFromContext(ctx)}
	select {
	case b.queue <- env:
		logger.Debug("event_enqueued")
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted",
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.queue:
			b.fanout(ctx, env)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, env envelope) {
	name := env.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	ctx = context.WithoutCancel(ctx)
	if env.span.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, env.span)
	}
	ctx = logctx.With(ctx, logger)

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			if err := h(hctx, env.event); err != nil {
				logger.Warn("event_handler_error",
					observability.F("error", err.Error()),
				)
			}
		}()
	}

	wg.Wait()

	logger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}
