package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const documentColumns = `id, filename, original_name, mime_type, file_size, file_path, content, summary, status, team, uploaded_by, error_message, created_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the documents and document_chunks tables. dimension
// fixes the size of the embedding column and must match the embedder.
func (r *DocumentRepository) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ensure schema", fmt.Errorf("vector dimension %d", dimension))
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	file_path TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	summary TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	team TEXT,
	uploaded_by TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_team ON documents(team);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC);

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	start_position INTEGER NOT NULL,
	end_position INTEGER NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
	ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, dimension)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.Filename, doc.OriginalName, doc.MimeType, doc.FileSize, doc.FilePath, doc.Content,
		nullString(doc.Summary), string(doc.Status), nullString(doc.Team), nullString(doc.UploadedBy),
		nullString(doc.Error), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = NULL, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusProcessing), time.Now().UTC(), string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim document rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), nullString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return ensureAffected(res, "update document status", id)
}

func (r *DocumentRepository) SaveContent(ctx context.Context, id, content string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET content = $2, updated_at = $3
WHERE id = $1
`, id, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document content: %w", err)
	}
	return ensureAffected(res, "save document content", id)
}

func (r *DocumentRepository) SaveSummary(ctx context.Context, id, summary string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET summary = $2, updated_at = $3
WHERE id = $1
`, id, nullString(summary), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document summary: %w", err)
	}
	return ensureAffected(res, "save document summary", id)
}

func (r *DocumentRepository) Query(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	where, args := buildWhere(filter, "")
	query := `SELECT ` + documentColumns + ` FROM documents` + where + ` ORDER BY ` + orderColumn(filter.OrderBy) + ` DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) Count(ctx context.Context, filter domain.DocumentFilter) (int, error) {
	where, args := buildWhere(filter, "")
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var summary, team, uploadedBy, errMessage sql.NullString
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.OriginalName, &doc.MimeType, &doc.FileSize, &doc.FilePath, &doc.Content,
		&summary, &status, &team, &uploadedBy, &errMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.Summary = summary.String
	doc.Team = team.String
	doc.UploadedBy = uploadedBy.String
	doc.Error = errMessage.String
	return &doc, nil
}

// buildWhere renders filter conditions with $n placeholders. prefix qualifies
// column names, e.g. "d.".
func buildWhere(filter domain.DocumentFilter, prefix string) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("%sstatus = $%d", prefix, len(args)))
	}
	if filter.Team != "" {
		args = append(args, filter.Team)
		conds = append(conds, fmt.Sprintf("%steam = $%d", prefix, len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderColumn(order domain.DocumentOrder) string {
	if order == domain.OrderUpdatedAtDesc {
		return "updated_at"
	}
	return "created_at"
}

func ensureAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
