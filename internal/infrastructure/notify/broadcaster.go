// Package notify fans document status transitions out to in-process listeners
// such as the server-sent events stream.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const subscriberBuffer = 32

type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.StatusEvent]struct{}
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[chan domain.StatusEvent]struct{}),
		logger: logger,
	}
}

// Subscribe returns a buffered event channel and a cancel func that must be
// called to release it.
func (b *Broadcaster) Subscribe() (<-chan domain.StatusEvent, func()) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// NotifyStatus never blocks; slow subscribers lose events.
func (b *Broadcaster) NotifyStatus(_ context.Context, event domain.StatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("status_event_dropped", "document_id", event.DocumentID, "status", event.Status)
		}
	}
}
