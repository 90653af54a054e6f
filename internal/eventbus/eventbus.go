package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is a single item published onto the bus. Type is a short,
// dotted-namespace tag (e.g. "signal.generated", "position.closed");
// Payload carries the event-specific data.
type Event struct {
	Type      string
	Payload   interface{}
	Timestamp time.Time
}

// Handler consumes events drained by the bus's worker goroutine. It
// runs on the bus's single consumer goroutine, so handlers must not
// block for long or they will back up every other publisher.
type Handler func(Event)

// Stats is a snapshot of the bus's lifetime counters, exposed for the
// /metrics surface (sampled by the composition root's metrics poller).
type Stats struct {
	EventsPublished uint64
	EventsConsumed  uint64
	EventsDropped   uint64
	QueueSize       int
	WorkerRunning   bool
}

// Bus bridges any number of concurrent producers (including blocking
// OS-thread readers, such as the upstream websocket reader goroutine)
// to a single ordered consumer. Publishing from any goroutine is
// intrinsically thread-safe: Go channels need no external lock the way
// a bridge from a blocking thread into an asyncio-style event loop
// would, so there is only one code path here rather than a
// thread-safe publish plus a separate loop-scheduled dispatch.
type Bus struct {
	queue    chan Event
	handlers []Handler
	handlersMu sync.RWMutex

	idleTimeout time.Duration

	published uint64
	consumed  uint64
	dropped   uint64
	running   int32
}

// Config tunes the bus's buffering and idle-shutdown behavior.
type Config struct {
	QueueSize   int           // default 4096
	IdleTimeout time.Duration // default 5s
}

// DefaultConfig returns the bus's default tunables.
func DefaultConfig() Config {
	return Config{QueueSize: 4096, IdleTimeout: 5 * time.Second}
}

// New builds a Bus. Run must be called to start the consumer goroutine.
func New(cfg Config) *Bus {
	if cfg.QueueSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Bus{
		queue:       make(chan Event, cfg.QueueSize),
		idleTimeout: cfg.IdleTimeout,
	}
}

// Subscribe registers a handler invoked for every published event.
// Handlers are never removed individually; the bus is expected to be
// torn down and rebuilt at shutdown instead of churning subscriptions.
func (b *Bus) Subscribe(h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues an event without blocking. If the queue is full the
// event is dropped and counted, never blocking the caller — this keeps
// a slow consumer from stalling the upstream market-data reader.
func (b *Bus) Publish(eventType string, payload interface{}) {
	evt := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	select {
	case b.queue <- evt:
		atomic.AddUint64(&b.published, 1)
	default:
		atomic.AddUint64(&b.dropped, 1)
		log.Warn().Str("event_type", eventType).Msg("event bus queue full, event dropped")
	}
}

// Run starts the consumer goroutine and blocks until ctx is cancelled
// or the bus has sat idle (no events, and the queue is empty) for
// longer than idleTimeout — the idle path lets a short-lived caller
// (tests, a one-shot backtest run) let the bus wind down on its own
// rather than requiring an explicit Stop.
func (b *Bus) Run(ctx context.Context) {
	atomic.StoreInt32(&b.running, 1)
	defer atomic.StoreInt32(&b.running, 0)

	idle := time.NewTimer(b.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case evt := <-b.queue:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			b.dispatch(evt)
			idle.Reset(b.idleTimeout)
		case <-idle.C:
			return
		}
	}
}

// drain dispatches any events still queued at shutdown so a graceful
// stop does not silently lose in-flight publishes.
func (b *Bus) drain() {
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(evt Event) {
	atomic.AddUint64(&b.consumed, 1)

	b.handlersMu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.handlersMu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Stats returns a point-in-time snapshot of the bus's counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsPublished: atomic.LoadUint64(&b.published),
		EventsConsumed:  atomic.LoadUint64(&b.consumed),
		EventsDropped:   atomic.LoadUint64(&b.dropped),
		QueueSize:       len(b.queue),
		WorkerRunning:   atomic.LoadInt32(&b.running) == 1,
	}
}
