package domain

import "time"

// ChunkSegment is a window over the whitespace-normalized document text.
// Positions are rune offsets into that normalized text.
type ChunkSegment struct {
	ChunkIndex    int    `json:"chunk_index"`
	Content       string `json:"content"`
	StartPosition int    `json:"start_position"`
	EndPosition   int    `json:"end_position"`
}

type PreparedChunk struct {
	ChunkSegment
	Embedding []float32 `json:"-"`
}

type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	PreparedChunk
	CreatedAt time.Time `json:"created_at"`
}

type ProcessingResult struct {
	Content string
	Chunks  []PreparedChunk
	Summary string
}
