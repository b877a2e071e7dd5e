// Package bus carries inbound chat events from connectors to the relay
// loop over a buffered Go channel.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"gembot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus implements domain.EventBus for in-process delivery.
type InMemoryBus struct {
	inbound chan domain.InboundEvent
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundEvent, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues an event. When the buffer is full it blocks up to
// publishTimeout before dropping, so a slow backend backs pressure onto
// the connectors instead of silently losing messages.
func (b *InMemoryBus) Publish(ev domain.InboundEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", ev.Channel)
		return
	}

	select {
	case b.inbound <- ev:
	default:
		b.logger.Warn("event bus full, waiting", "channel", ev.Channel, "chat", ev.ChatID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- ev:
		case <-timer.C:
			b.logger.Error("event dropped, bus full", "channel", ev.Channel, "chat", ev.ChatID)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
