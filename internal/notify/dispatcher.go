package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const publishTimeout = 3 * time.Second

// Dispatcher decouples event producers from the Publisher with a bounded
// queue drained by one goroutine. Events that do not fit are dropped.
type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger
	queue     chan Event
	dropped   atomic.Int64
	onDrop    func()

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewDispatcher builds a dispatcher with the given buffer size.
func NewDispatcher(publisher Publisher, buffer int, logger *slog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan Event, buffer),
		done:      make(chan struct{}),
	}
}

// OnDrop registers a hook invoked for every dropped event, typically a metric.
func (d *Dispatcher) OnDrop(fn func()) {
	d.onDrop = fn
}

// Start launches the drain loop.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Emit queues event without blocking.
func (d *Dispatcher) Emit(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(event)
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event)
	}
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warn("notify publish failed", slog.String("kind", string(event.Kind)), slog.Any("error", err))
		}
		cancel()
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
	d.logger.Debug("notify event dropped", slog.String("kind", string(event.Kind)))
}
