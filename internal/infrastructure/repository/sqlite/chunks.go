package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func (s *Store) SaveChunks(ctx context.Context, documentID string, chunks []domain.PreparedChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	now := s.stamp()
	for _, chunk := range chunks {
		embedding, err := encodeEmbedding(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding %d: %w", chunk.ChunkIndex, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO document_chunks (id, document_id, chunk_index, content, start_position, end_position, embedding, created_at)
VALUES (?,?,?,?,?,?,?,?)`,
			uuid.NewString(), documentID, chunk.ChunkIndex, chunk.Content,
			chunk.StartPosition, chunk.EndPosition, embedding, now,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, chunk_index, content, start_position, end_position, embedding, created_at
FROM document_chunks
WHERE document_id = ?
ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0)
	for rows.Next() {
		var c domain.DocumentChunk
		var embedding string
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartPosition, &c.EndPosition, &embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", c.ChunkIndex, err)
		}
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

type scoredDocument struct {
	doc   domain.Document
	score float64
}

// SearchSimilar scores every chunk of the filtered documents by cosine
// similarity and ranks documents by their best chunk.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, filter domain.DocumentFilter) ([]domain.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 3
	}

	where, args := buildWhere(filter, "d.")
	rows, err := s.db.QueryContext(ctx, `
SELECT c.document_id, c.embedding
FROM document_chunks c
JOIN documents d ON d.id = c.document_id`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity candidates: %w", err)
	}

	best := make(map[string]float64)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		var emb []float32
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode candidate embedding: %w", err)
		}
		score := cosine(vector, emb)
		if prev, ok := best[id]; !ok || score > prev {
			best[id] = score
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	rows.Close()

	scored := make([]scoredDocument, 0, len(best))
	for id, score := range best {
		doc, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		scored = append(scored, scoredDocument{doc: *doc, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].doc.UpdatedAt.After(scored[j].doc.UpdatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]domain.Document, 0, len(scored))
	for _, sd := range scored {
		out = append(out, sd.doc)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
