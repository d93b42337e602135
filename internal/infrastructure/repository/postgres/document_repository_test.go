package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

var documentColumnNames = []string{
	"id", "filename", "original_name", "mime_type", "file_size", "file_path", "content", "summary",
	"status", "team", "uploaded_by", "error_message", "created_at", "updated_at",
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, original_name").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDMapsNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, filename, original_name").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentColumnNames).AddRow(
			"doc-1", "doc-1.txt", "notes.txt", "text/plain", int64(11), "doc-1.txt", "hello world",
			nil, "completed", "eng", nil, nil, now, now,
		))

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Status != domain.StatusCompleted || doc.Team != "eng" || doc.Summary != "" || doc.Content != "hello world" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusFailed), "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusFailed, "boom")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimForProcessingOnlyWinsFromPending(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(), string(domain.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(), string(domain.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.ClaimForProcessing(context.Background(), "doc-1")
	if err != nil || !first {
		t.Fatalf("expected first claim to win, got %v, %v", first, err)
	}
	second, err := repo.ClaimForProcessing(context.Background(), "doc-1")
	if err != nil || second {
		t.Fatalf("expected second claim to lose, got %v, %v", second, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveContentReturnsNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", "text", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SaveContent(context.Background(), "missing", "text"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestQueryAppliesFilterOrderAndLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM documents WHERE status = \$1 AND team = \$2 ORDER BY updated_at DESC LIMIT \$3`).
		WithArgs("completed", "eng", 3).
		WillReturnRows(sqlmock.NewRows(documentColumnNames).
			AddRow("b", "b.txt", "b.txt", "text/plain", int64(1), "b.txt", "bbb", "sum b", "completed", "eng", nil, nil, now, now).
			AddRow("a", "a.txt", "a.txt", "text/plain", int64(1), "a.txt", "aaa", nil, "completed", "eng", nil, nil, now, now.Add(-time.Minute)))

	docs, err := repo.Query(context.Background(), domain.DocumentFilter{
		Status:  domain.StatusCompleted,
		Team:    "eng",
		Limit:   3,
		OrderBy: domain.OrderUpdatedAtDesc,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "b" || docs[0].Summary != "sum b" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryWithoutFilterPaginatesByCreatedAt(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`FROM documents ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 20).
		WillReturnRows(sqlmock.NewRows(documentColumnNames))

	docs, err := repo.Query(context.Background(), domain.DocumentFilter{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", docs)
	}
}

func TestCount(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents WHERE team = \$1`).
		WithArgs("ops").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := repo.Count(context.Background(), domain.DocumentFilter{Team: "ops"})
	if err != nil || total != 4 {
		t.Fatalf("unexpected count %d, %v", total, err)
	}
}

func TestSaveChunksReplacesChunkSetInTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs(sqlmock.AnyArg(), "doc-1", 0, "first", 0, 5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs(sqlmock.AnyArg(), "doc-1", 1, "second", 3, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveChunks(context.Background(), "doc-1", []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "first", StartPosition: 0, EndPosition: 5}, Embedding: []float32{1, 0}},
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 1, Content: "second", StartPosition: 3, EndPosition: 9}, Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveChunksRollsBackOnInsertError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO document_chunks").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SaveChunks(context.Background(), "doc-1", []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{Content: "x"}, Embedding: []float32{1}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchSimilarPassesFilterAndVector(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery(`WITH nearest AS`).
		WithArgs("completed", "eng", sqlmock.AnyArg(), 60, 3).
		WillReturnRows(sqlmock.NewRows(documentColumnNames).
			AddRow("a", "a.txt", "a.txt", "text/plain", int64(1), "a.txt", "aaa", nil, "completed", "eng", nil, nil, now, now))

	docs, err := repo.SearchSimilar(context.Background(), []float32{0.5, 0.5}, domain.DocumentFilter{
		Status: domain.StatusCompleted,
		Team:   "eng",
		Limit:  3,
	})
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Fatalf("unexpected documents %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
