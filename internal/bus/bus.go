package bus

import (
	"log/slog"
	"sync"
	"time"

	"popmap/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus carries inbound events from the gateway to the dispatcher
// over a buffered Go channel.
type InMemoryBus struct {
	inbound chan *domain.Event
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan *domain.Event, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues an event. It blocks up to publishTimeout when the bus is
// full and reports whether the event was accepted.
func (b *InMemoryBus) Publish(ev *domain.Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "event_id", ev.ID)
		return false
	}

	select {
	case b.inbound <- ev:
		return true
	default:
	}

	b.logger.Warn("inbound bus full, waiting...", "kind", ev.Kind, "event_id", ev.ID)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- ev:
		b.logger.Info("event delivered after wait", "event_id", ev.ID)
		return true
	case <-timer.C:
		b.logger.Error("event dropped: bus full",
			"kind", ev.Kind,
			"event_id", ev.ID,
			"user", ev.UserID,
			"waited", b.timeout,
		)
		return false
	}
}

// Events returns the receive side consumed by the dispatcher.
func (b *InMemoryBus) Events() <-chan *domain.Event {
	return b.inbound
}

// Close stops accepting events and closes the stream.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
