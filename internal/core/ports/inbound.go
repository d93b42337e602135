package ports

import (
	"context"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata, content and chunks.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, req domain.ListRequest) (*domain.DocumentPage, error)
	ListChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QuestionAnswerer answers questions from stored documents.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question, team string) (*domain.Answer, error)
}
