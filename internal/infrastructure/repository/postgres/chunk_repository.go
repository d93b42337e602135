package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// similarityCandidates is how many nearest chunks are scanned per requested document.
const similarityCandidates = 20

func (r *DocumentRepository) SaveChunks(ctx context.Context, documentID string, chunks []domain.PreparedChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (id, document_id, chunk_index, content, start_position, end_position, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			uuid.NewString(), documentID, chunk.ChunkIndex, chunk.Content,
			chunk.StartPosition, chunk.EndPosition, pgvector.NewVector(chunk.Embedding), now,
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

func (r *DocumentRepository) ListChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, chunk_index, content, start_position, end_position, embedding, created_at
FROM document_chunks
WHERE document_id = $1
ORDER BY chunk_index ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0)
	for rows.Next() {
		var c domain.DocumentChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartPosition, &c.EndPosition, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// SearchSimilar ranks documents by their closest chunk (cosine distance).
func (r *DocumentRepository) SearchSimilar(ctx context.Context, vector []float32, filter domain.DocumentFilter) ([]domain.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 3
	}

	where, args := buildWhere(filter, "d.")
	args = append(args, pgvector.NewVector(vector))
	vecArg := len(args)
	args = append(args, limit*similarityCandidates)
	candidatesArg := len(args)
	args = append(args, limit)
	limitArg := len(args)

	query := fmt.Sprintf(`
WITH nearest AS (
	SELECT c.document_id, c.embedding <=> $%[1]d AS distance
	FROM document_chunks c
	JOIN documents d ON d.id = c.document_id%[4]s
	ORDER BY c.embedding <=> $%[1]d
	LIMIT $%[2]d
), best AS (
	SELECT document_id, MIN(distance) AS distance
	FROM nearest
	GROUP BY document_id
)
SELECT d.id, d.filename, d.original_name, d.mime_type, d.file_size, d.file_path, d.content, d.summary,
	d.status, d.team, d.uploaded_by, d.error_message, d.created_at, d.updated_at
FROM best
JOIN documents d ON d.id = best.document_id
ORDER BY best.distance ASC, d.updated_at DESC
LIMIT $%[3]d
`, vecArg, candidatesArg, limitArg, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity results: %w", err)
	}
	return out, nil
}
