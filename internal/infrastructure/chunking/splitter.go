package chunking

import (
	"strings"
	"unicode"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Normalize collapses every whitespace run to one space and trims the ends.
// Chunk positions are offsets into this form.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(text, isSpace), " ")
}

// isSpace is unicode.IsSpace plus the byte order mark, without NEL.
func isSpace(r rune) bool {
	if r == '\uFEFF' {
		return true
	}
	return r != '\u0085' && unicode.IsSpace(r)
}

// Split slides a ChunkSize window over the normalized text in steps of
// ChunkSize-Overlap (at least 1). Content is trimmed, positions are not.
func (s *Splitter) Split(text string) []domain.ChunkSegment {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return []domain.ChunkSegment{}
	}

	if len(runes) <= s.ChunkSize {
		return []domain.ChunkSegment{{
			ChunkIndex:    0,
			Content:       string(runes),
			StartPosition: 0,
			EndPosition:   len(runes),
		}}
	}

	step := max(1, s.ChunkSize-s.Overlap)

	out := make([]domain.ChunkSegment, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		out = append(out, domain.ChunkSegment{
			ChunkIndex:    len(out),
			Content:       strings.TrimFunc(string(runes[start:end]), isSpace),
			StartPosition: start,
			EndPosition:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return out
}
