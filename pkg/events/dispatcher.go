package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Publisher delivers an event to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Dispatcher queues events and fans them out to publishers on its own goroutine.
// Dispatch never blocks: when the queue is full the event is dropped and counted.
type Dispatcher struct {
	queue      chan Event
	publishers []Publisher
	log        *zap.Logger
	dropped    atomic.Uint64
}

func NewDispatcher(buffer int, log *zap.Logger, publishers ...Publisher) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		queue:      make(chan Event, buffer),
		publishers: publishers,
		log:        log,
	}
}

// Dispatch enqueues ev for delivery.
func (d *Dispatcher) Dispatch(ev Event) {
	select {
	case d.queue <- ev:
	default:
		n := d.dropped.Add(1)
		d.log.Warn("event_dropped", zap.String("type", ev.Type), zap.String("ticker", ev.Ticker), zap.Uint64("dropped_total", n))
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers queued events until ctx is cancelled, then flushes what is already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for i, p := range d.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			d.log.Error("event_publish_failed",
				zap.Int("publisher_index", i),
				zap.String("type", ev.Type),
				zap.String("ticker", ev.Ticker),
				zap.Error(err))
		}
	}
}
