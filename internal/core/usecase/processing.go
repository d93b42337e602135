package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	DefaultSummaryMaxChars = 3000

	summaryTemperature = 0.3
	summaryMaxTokens   = 200

	summarySystemPrompt = "You are an expert at summarizing documents concisely."
	summaryUserPrompt   = "Summarize the following document in 3-5 sentences:\n\n"
)

type ProcessingOptions struct {
	// SummaryMaxChars bounds the content prefix (in characters) sent for summarization.
	SummaryMaxChars int
	// EmbedConcurrency > 1 embeds chunks in parallel; output order is unchanged.
	EmbedConcurrency int
}

// ProcessingSink receives each pipeline step's output as soon as it exists.
type ProcessingSink interface {
	ContentExtracted(ctx context.Context, content string) error
	ChunksPrepared(ctx context.Context, chunks []domain.PreparedChunk) error
	Summarized(ctx context.Context, summary string) error
}

// DocumentProcessingService turns a stored file into content, embedded chunks
// and a summary. It holds no document state.
type DocumentProcessingService struct {
	extractor ports.ContentExtractor
	chunker   ports.Chunker
	embedder  ports.EmbeddingProvider
	chat      ports.ChatProvider
	opts      ProcessingOptions
	logger    *slog.Logger
}

func NewDocumentProcessingService(
	extractor ports.ContentExtractor,
	chunker ports.Chunker,
	embedder ports.EmbeddingProvider,
	chat ports.ChatProvider,
	opts ProcessingOptions,
	logger *slog.Logger,
) *DocumentProcessingService {
	if opts.SummaryMaxChars <= 0 {
		opts.SummaryMaxChars = DefaultSummaryMaxChars
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentProcessingService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		chat:      chat,
		opts:      opts,
		logger:    logger,
	}
}

// Process runs extract, chunk, embed and summarize in that order. A nil sink
// only collects the result.
func (s *DocumentProcessingService) Process(ctx context.Context, doc *domain.Document, sink ProcessingSink) (*domain.ProcessingResult, error) {
	content, err := s.ExtractContent(ctx, doc)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.ContentExtracted(ctx, content); err != nil {
			return nil, fmt.Errorf("save content: %w", err)
		}
	}

	chunks, err := s.EmbedChunks(ctx, s.SplitIntoChunks(content))
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.ChunksPrepared(ctx, chunks); err != nil {
			return nil, fmt.Errorf("save chunks: %w", err)
		}
	}

	summary, err := s.Summarize(ctx, content)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.Summarized(ctx, summary); err != nil {
			return nil, fmt.Errorf("save summary: %w", err)
		}
	}

	return &domain.ProcessingResult{Content: content, Chunks: chunks, Summary: summary}, nil
}

func (s *DocumentProcessingService) ExtractContent(ctx context.Context, doc *domain.Document) (string, error) {
	content, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	return content, nil
}

func (s *DocumentProcessingService) SplitIntoChunks(content string) []domain.ChunkSegment {
	return s.chunker.Split(content)
}

// EmbedChunks embeds every segment; result i always belongs to segment i.
func (s *DocumentProcessingService) EmbedChunks(ctx context.Context, segments []domain.ChunkSegment) ([]domain.PreparedChunk, error) {
	out := make([]domain.PreparedChunk, len(segments))
	if len(segments) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)
	for i, segment := range segments {
		g.Go(func() error {
			vector, err := s.embedder.Embed(gctx, segment.Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", segment.ChunkIndex, err)
			}
			out[i] = domain.PreparedChunk{ChunkSegment: segment, Embedding: vector}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize asks the chat provider for a short summary of the content prefix.
// Empty content yields an empty summary without a provider call.
func (s *DocumentProcessingService) Summarize(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	truncated := truncateRunes(content, s.opts.SummaryMaxChars)

	temperature := summaryTemperature
	resp, err := s.chat.Chat(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: summarySystemPrompt},
			{Role: domain.RoleUser, Content: summaryUserPrompt + truncated},
		},
		Temperature: &temperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize content: %w", err)
	}
	s.logger.Debug("document_summarized", "model", resp.Model, "summary_chars", len([]rune(resp.Content)))
	return resp.Content, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
