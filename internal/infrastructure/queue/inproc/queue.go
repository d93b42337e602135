// Package inproc is an in-memory upload queue for single-process deployments
// and tests. Events published before a subscriber starts stay buffered.
package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const defaultBuffer = 256

var errQueueClosed = errors.New("queue closed")

type Queue struct {
	events      chan domain.UploadEvent
	concurrency int
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func New(buffer, concurrency int, logger *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		events:      make(chan domain.UploadEvent, buffer),
		concurrency: concurrency,
		logger:      logger,
	}
}

// PublishDocumentUploaded blocks while the buffer is full.
func (q *Queue) PublishDocumentUploaded(ctx context.Context, event domain.UploadEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.WrapError(domain.ErrTemporary, "inproc publish", errQueueClosed)
	}
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "inproc publish", ctx.Err())
	}
}

// SubscribeDocumentUploaded runs the handler on a fixed pool of goroutines
// until ctx is done or the queue is closed, then waits for in-flight handlers.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-q.events:
					if !ok {
						return
					}
					if err := handler(ctx, event); err != nil {
						q.logger.Error("worker_handler_failed", "document_id", event.DocumentID, "error", err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}
