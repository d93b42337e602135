package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	DefaultQAMaxDocuments = 3
	DefaultQAPreviewChars = 1200

	NoReferenceDocuments = "No reference documents available."

	qaSystemPrompt   = "You are an AI assistant that analyzes internal company documents and provides accurate answers."
	qaUserPrompt     = "Answer the question using the following document content.\n\nDocuments:\n%s\n\nQuestion: %s"
	contextSeparator = "\n---\n"
)

type QAOptions struct {
	MaxDocuments int
	PreviewChars int
	Mode         domain.RetrievalMode
	Model        string
}

// QAService answers questions from completed documents.
type QAService struct {
	repo     ports.DocumentRepository
	chunks   ports.ChunkStore
	embedder ports.EmbeddingProvider
	chat     ports.ChatProvider
	opts     QAOptions
	logger   *slog.Logger
}

// NewQAService builds the service. chunks and embedder are only consulted in
// similarity mode and may be nil otherwise.
func NewQAService(
	repo ports.DocumentRepository,
	chunks ports.ChunkStore,
	embedder ports.EmbeddingProvider,
	chat ports.ChatProvider,
	opts QAOptions,
	logger *slog.Logger,
) *QAService {
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = DefaultQAMaxDocuments
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultQAPreviewChars
	}
	if opts.Mode == "" {
		opts.Mode = domain.RetrievalRecency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QAService{
		repo:     repo,
		chunks:   chunks,
		embedder: embedder,
		chat:     chat,
		opts:     opts,
		logger:   logger,
	}
}

func (s *QAService) Mode() domain.RetrievalMode {
	return s.opts.Mode
}

func (s *QAService) Ask(ctx context.Context, question, team string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	team = strings.TrimSpace(team)

	docs, err := s.retrieve(ctx, question, team)
	if err != nil {
		return nil, err
	}

	resp, err := s.chat.Chat(ctx, domain.ChatRequest{
		Model: s.opts.Model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: qaSystemPrompt},
			{Role: domain.RoleUser, Content: fmt.Sprintf(qaUserPrompt, s.BuildContext(docs), question)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Info("question_answered",
		"team", team,
		"retrieval_mode", s.opts.Mode,
		"sources", len(docs),
		"model", resp.Model,
	)
	return &domain.Answer{
		Answer:  resp.Content,
		Model:   resp.Model,
		Mode:    s.opts.Mode,
		Sources: docs,
	}, nil
}

func (s *QAService) retrieve(ctx context.Context, question, team string) ([]domain.Document, error) {
	filter := domain.DocumentFilter{
		Team:    team,
		Status:  domain.StatusCompleted,
		Limit:   s.opts.MaxDocuments,
		OrderBy: domain.OrderUpdatedAtDesc,
	}

	var (
		docs []domain.Document
		err  error
	)
	if s.opts.Mode == domain.RetrievalSimilarity && s.chunks != nil && s.embedder != nil {
		docs, err = s.searchSimilar(ctx, question, filter)
	} else {
		docs, err = s.repo.Query(ctx, filter)
		if err != nil {
			err = fmt.Errorf("query documents: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

func (s *QAService) searchSimilar(ctx context.Context, question string, filter domain.DocumentFilter) ([]domain.Document, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	docs, err := s.chunks.SearchSimilar(ctx, vector, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return docs, nil
}

// BuildContext renders the documents block of the QA prompt.
func (s *QAService) BuildContext(docs []domain.Document) string {
	if len(docs) == 0 {
		return NoReferenceDocuments
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		source := doc.Summary
		if source == "" {
			source = doc.Content
		}
		preview := strings.TrimSpace(truncateRunes(source, s.opts.PreviewChars))
		parts = append(parts, fmt.Sprintf("document: %s\nteam: %s\ncontent: %s", doc.OriginalName, doc.TeamLabel(), preview))
	}
	return strings.Join(parts, contextSeparator)
}
