// Package eventbus delivers committed domain events to the consumers that
// live beside the service: the zap log, the websocket stream and the
// optional AMQP relay.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/event"
)

const defaultBuffer = 256

// Handler consumes one event. Consumers run on the bus goroutine, one
// event at a time, in publish order.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

type subscription struct {
	name string
	h    Handler
}

// Bus queues events on a bounded channel and fans them out to every
// subscriber. Publish never blocks the request that produced the event.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	queue   chan event.DomainEvent
	done    chan struct{}
	started bool
	stopped bool
	dropped atomic.Int64
	logger  *zap.Logger
}

// New creates a bus holding up to buffer pending events.
func New(buffer int, logger *zap.Logger) *Bus {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		queue:  make(chan event.DomainEvent, buffer),
		done:   make(chan struct{}),
		logger: logger.Named("eventbus"),
	}
}

// Subscribe adds a consumer. Subscriptions made after Start only see
// events dispatched after the call.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	b.subs = append(b.subs, subscription{name: name, h: h})
	b.mu.Unlock()
}

// Dropped reports how many events were discarded because the queue was
// full or the bus had stopped.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	reason := "bus stopped"
	if !b.stopped {
		select {
		case b.queue <- evt:
			return
		default:
			reason = "queue full"
		}
	}
	b.dropped.Add(1)
	b.logger.Warn("event dropped",
		zap.String("reason", reason),
		zap.String("type", evt.EventType),
		zap.String("id", evt.ID))
}

// Start launches the dispatch goroutine. When ctx ends the goroutine
// delivers what is already queued and exits; Stop does the same.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.queue:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				b.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// Stop refuses further events and waits for queued ones to be delivered.
// It is safe to call more than once, and before Start.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	close(b.queue)
	b.mu.Unlock()
	if started {
		<-b.done
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-b.queue:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if err := deliver(ctx, s.h, evt); err != nil {
			b.logger.Error("event consumer failed",
				zap.String("consumer", s.name),
				zap.String("type", evt.EventType),
				zap.String("id", evt.ID),
				zap.Error(err))
		}
	}
}

// deliver turns a consumer panic into an error so one bad consumer cannot
// stop delivery to the rest.
func deliver(ctx context.Context, h Handler, evt event.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.HandleEvent(ctx, evt)
}
