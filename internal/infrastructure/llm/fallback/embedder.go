package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf16"

	"github.com/kirillkom/docqa/internal/core/ports"
)

const DefaultDimension = 1536

// LocalEmbedding hashes UTF-16 code units of text into a histogram of
// dimension buckets and L2-normalizes it. Empty text yields a zero vector.
func LocalEmbedding(text string, dimension int) []float32 {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	hist := make([]float64, dimension)
	for _, unit := range utf16.Encode([]rune(text)) {
		hist[int(unit)%dimension]++
	}

	var sum float64
	for _, v := range hist {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, dimension)
	for i, v := range hist {
		out[i] = float32(v / norm)
	}
	return out
}

// Embedder never fails: any remote error, or a vector of the wrong size,
// is replaced by LocalEmbedding.
type Embedder struct {
	remote    ports.EmbeddingProvider
	dimension int
	logger    *slog.Logger
}

// NewEmbedder wraps remote. A nil remote always embeds locally.
func NewEmbedder(remote ports.EmbeddingProvider, dimension int, logger *slog.Logger) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{remote: remote, dimension: dimension, logger: logger}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.remote == nil {
		return LocalEmbedding(text, e.dimension), nil
	}

	vec, err := e.remote.Embed(ctx, text)
	if err == nil && len(vec) != e.dimension {
		err = fmt.Errorf("remote embedding has dimension %d, want %d", len(vec), e.dimension)
	}
	if err != nil {
		e.logger.Warn("embedding_fallback", "error", err, "text_chars", len(text))
		return LocalEmbedding(text, e.dimension), nil
	}
	return vec, nil
}
