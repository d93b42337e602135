package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ClaimForProcessing flips pending to processing and reports whether this caller won.
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveContent(ctx context.Context, id, content string) error
	SaveSummary(ctx context.Context, id, summary string) error
	Query(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	Count(ctx context.Context, filter domain.DocumentFilter) (int, error)
}

// ChunkStore persists chunk rows and runs nearest-neighbour lookups over them.
type ChunkStore interface {
	// SaveChunks replaces the chunk set of a document.
	SaveChunks(ctx context.Context, documentID string, chunks []domain.PreparedChunk) error
	ListChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error)
	SearchSimilar(ctx context.Context, vector []float32, filter domain.DocumentFilter) ([]domain.Document, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, event domain.UploadEvent) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// StatusNotifier fans out document status transitions. Delivery is best effort.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, event domain.StatusEvent)
}

// ContentExtractor turns a stored file into plain text.
type ContentExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into overlapping positioned segments.
type Chunker interface {
	Split(text string) []domain.ChunkSegment
}

// EmbeddingProvider builds a fixed-dimension vector for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatProvider generates a response for a message list.
type ChatProvider interface {
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)
}
