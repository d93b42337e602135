package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type DocumentQueryUseCase struct {
	repo   ports.DocumentRepository
	chunks ports.ChunkStore
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, chunks ports.ChunkStore) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo, chunks: chunks}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

// List pages documents newest first.
func (uc *DocumentQueryUseCase) List(ctx context.Context, req domain.ListRequest) (*domain.DocumentPage, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", req.Status))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	query := domain.DocumentFilter{
		Team:    strings.TrimSpace(req.Team),
		Status:  req.Status,
		Limit:   limit,
		Offset:  (page - 1) * limit,
		OrderBy: domain.OrderCreatedAtDesc,
	}
	docs, err := uc.repo.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	total, err := uc.repo.Count(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return &domain.DocumentPage{Data: docs, Total: total, Page: page, Limit: limit}, nil
}

func (uc *DocumentQueryUseCase) ListChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	if _, err := uc.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	chunks, err := uc.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}
