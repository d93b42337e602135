package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const DefaultMaxFileSize int64 = 10 << 20

var allowedMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
	"text/plain": {},
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".txt":  {},
	".xlsx": {},
}

type IngestDocumentUseCase struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	notifier    ports.StatusNotifier
	maxFileSize int64
	logger      *slog.Logger
	now         func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	notifier ports.StatusNotifier,
	maxFileSize int64,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		notifier:    notifier,
		maxFileSize: maxFileSize,
		logger:      logger,
		now:         time.Now,
	}
}

// Upload stores the file, records a pending document and hands it to the
// queue. It returns before any processing starts.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error) {
	originalName, ext, err := uc.validate(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := id + ext
	body := &countingReader{r: io.LimitReader(req.Body, uc.maxFileSize+1)}
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if body.n > uc.maxFileSize {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", uc.maxFileSize))
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:           id,
		Filename:     storageKey,
		OriginalName: originalName,
		MimeType:     normalizeMimeType(req.MimeType),
		FileSize:     body.n,
		FilePath:     storageKey,
		Status:       domain.StatusPending,
		Team:         strings.TrimSpace(req.Team),
		UploadedBy:   strings.TrimSpace(req.UploadedBy),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	event := domain.UploadEvent{DocumentID: doc.ID, FilePath: doc.FilePath, UploadedAt: now}
	if err := uc.queue.PublishDocumentUploaded(ctx, event); err != nil {
		uc.logger.Error("upload_event_publish_failed", "document_id", doc.ID, "error", err)
		uc.abandon(ctx, doc, err)
		return nil, fmt.Errorf("publish upload event: %w", err)
	}
	if uc.notifier != nil {
		uc.notifier.NotifyStatus(ctx, domain.StatusEvent{DocumentID: doc.ID, Status: doc.Status, At: now})
	}

	uc.logger.Info("document_uploaded",
		"document_id", doc.ID,
		"original_name", doc.OriginalName,
		"file_size", doc.FileSize,
		"team", doc.Team,
	)
	return doc, nil
}

func (uc *IngestDocumentUseCase) validate(req domain.UploadRequest) (string, string, error) {
	if req.Body == nil {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is required"))
	}
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(req.Filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}
	if req.Size > uc.maxFileSize {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", uc.maxFileSize))
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !isAllowedType(req.MimeType, ext) {
		return "", "", domain.WrapError(
			domain.ErrInvalidInput,
			"upload",
			fmt.Errorf("unsupported file type %q (%s)", req.MimeType, ext),
		)
	}
	return name, ext, nil
}

// abandon fails a document whose upload event never reached the queue, so it
// does not sit in pending with nothing to drive it.
func (uc *IngestDocumentUseCase) abandon(ctx context.Context, doc *domain.Document, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := "enqueue failed: " + cause.Error()
	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, reason); err != nil {
		uc.logger.Error("document_orphaned", "document_id", doc.ID, "error", err)
	}
	uc.discard(ctx, doc.FilePath)
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		uc.logger.Warn("upload_cleanup_failed", "key", key, "error", err)
	}
}

func isAllowedType(mimeType, ext string) bool {
	if _, ok := allowedMimeTypes[normalizeMimeType(mimeType)]; ok {
		return true
	}
	_, ok := allowedExtensions[ext]
	return ok
}

func normalizeMimeType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
