package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	DefaultProcessTimeout = 5 * time.Minute
	markFailedTimeout     = 10 * time.Second
)

// ProcessDocumentUseCase drives a document from pending to completed or
// failed. It is the only writer of status, content and summary.
type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	chunks   ports.ChunkStore
	service  *DocumentProcessingService
	notifier ports.StatusNotifier
	locks    *keyedLock
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkStore,
	service *DocumentProcessingService,
	notifier ports.StatusNotifier,
	timeout time.Duration,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		chunks:   chunks,
		service:  service,
		notifier: notifier,
		locks:    newKeyedLock(),
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleUploadEvent is the queue handler for upload events.
func (uc *ProcessDocumentUseCase) HandleUploadEvent(ctx context.Context, event domain.UploadEvent) error {
	return uc.ProcessByID(ctx, event.DocumentID)
}

// ProcessByID processes a pending document. Documents in any other state are
// skipped, so redelivered events are harmless.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	unlock := uc.locks.Lock(documentID)
	defer unlock()

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusPending {
		uc.logger.Info("document_processing_skipped", "document_id", documentID, "status", doc.Status)
		return nil
	}

	claimed, err := uc.repo.ClaimForProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	if !claimed {
		uc.logger.Info("document_processing_skipped", "document_id", documentID, "reason", "claimed elsewhere")
		return nil
	}
	uc.notify(ctx, documentID, domain.StatusProcessing, "")
	uc.logger.Info("document_processing_started", "document_id", documentID, "original_name", doc.OriginalName)

	started := uc.now()
	runCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	doc.Status = domain.StatusProcessing
	result, err := uc.service.Process(runCtx, doc, &documentSink{uc: uc, documentID: documentID})
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusCompleted, ""); err != nil {
		return uc.fail(ctx, documentID, fmt.Errorf("set status=completed: %w", err))
	}
	uc.notify(ctx, documentID, domain.StatusCompleted, "")
	uc.logger.Info("document_processing_completed",
		"document_id", documentID,
		"chunks", len(result.Chunks),
		"content_chars", len([]rune(result.Content)),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// fail records the single terminal mutation. Writes made before the failure
// stay in place.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	uc.logger.Error("document_processing_failed", "document_id", documentID, "error", processErr)

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	if err := uc.repo.UpdateStatus(markCtx, documentID, domain.StatusFailed, processErr.Error()); err != nil {
		uc.logger.Error("document_mark_failed_error", "document_id", documentID, "error", err)
		return errors.Join(processErr, fmt.Errorf("mark failed status: %w", err))
	}
	uc.notify(markCtx, documentID, domain.StatusFailed, processErr.Error())
	return processErr
}

func (uc *ProcessDocumentUseCase) notify(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) {
	if uc.notifier == nil {
		return
	}
	uc.notifier.NotifyStatus(ctx, domain.StatusEvent{
		DocumentID: documentID,
		Status:     status,
		Error:      errMessage,
		At:         uc.now().UTC(),
	})
}

// documentSink persists each processing step immediately.
type documentSink struct {
	uc         *ProcessDocumentUseCase
	documentID string
}

func (s *documentSink) ContentExtracted(ctx context.Context, content string) error {
	return s.uc.repo.SaveContent(ctx, s.documentID, content)
}

func (s *documentSink) ChunksPrepared(ctx context.Context, chunks []domain.PreparedChunk) error {
	return s.uc.chunks.SaveChunks(ctx, s.documentID, chunks)
}

func (s *documentSink) Summarized(ctx context.Context, summary string) error {
	return s.uc.repo.SaveSummary(ctx, s.documentID, summary)
}
