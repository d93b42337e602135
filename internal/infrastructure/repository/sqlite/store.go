// Package sqlite is the embedded single-node store. It mirrors the postgres
// repository; embeddings are kept as JSON and ranked in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kirillkom/docqa/internal/core/domain"
)

const documentColumns = `id, filename, original_name, mime_type, file_size, file_path, content, summary, status, team, uploaded_by, error_message, created_at, updated_at`

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	file_path TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	summary TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	team TEXT,
	uploaded_by TEXT,
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_team ON documents(team);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);

CREATE TABLE IF NOT EXISTS document_chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	start_position INTEGER NOT NULL,
	end_position INTEGER NOT NULL,
	embedding TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (document_id, chunk_index)
);
`

// Store implements ports.DocumentRepository and ports.ChunkStore on SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates the database file (and its directory) if needed and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = filepath.Join(".", "data", "docqa.db")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps claims and chunk replacement serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Create(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		doc.ID, doc.Filename, doc.OriginalName, doc.MimeType, doc.FileSize, doc.FilePath, doc.Content,
		nullString(doc.Summary), string(doc.Status), nullString(doc.Team), nullString(doc.UploadedBy),
		nullString(doc.Error), doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *Store) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE documents SET status = ?, error_message = NULL, updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.StatusProcessing), s.stamp(), id, string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim document rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(errMessage), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return ensureAffected(res, "update document status", id)
}

func (s *Store) SaveContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET content = ?, updated_at = ? WHERE id = ?`, content, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("save document content: %w", err)
	}
	return ensureAffected(res, "save document content", id)
}

func (s *Store) SaveSummary(ctx context.Context, id, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET summary = ?, updated_at = ? WHERE id = ?`, nullString(summary), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("save document summary: %w", err)
	}
	return ensureAffected(res, "save document summary", id)
}

func (s *Store) Query(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	where, args := buildWhere(filter, "")
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		` ORDER BY ` + orderColumn(filter.OrderBy) + ` DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *Store) Count(ctx context.Context, filter domain.DocumentFilter) (int, error) {
	where, args := buildWhere(filter, "")
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixNano()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var summary, team, uploadedBy, errMessage sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.OriginalName, &doc.MimeType, &doc.FileSize, &doc.FilePath, &doc.Content,
		&summary, &status, &team, &uploadedBy, &errMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.Summary = summary.String
	doc.Team = team.String
	doc.UploadedBy = uploadedBy.String
	doc.Error = errMessage.String
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &doc, nil
}

// buildWhere renders filter conditions; prefix qualifies column names.
func buildWhere(filter domain.DocumentFilter, prefix string) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, prefix+"status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Team != "" {
		conds = append(conds, prefix+"team = ?")
		args = append(args, filter.Team)
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

func encodeEmbedding(v []float32) (string, error) {
	if v == nil {
		v = []float32{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
