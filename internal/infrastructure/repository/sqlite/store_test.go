package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDocument(t *testing.T, store *Store, id, team string, status domain.DocumentStatus, at time.Time) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &domain.Document{
		ID:           id,
		Filename:     id + ".txt",
		OriginalName: id + ".txt",
		MimeType:     "text/plain",
		FileSize:     10,
		FilePath:     id + ".txt",
		Status:       status,
		Team:         team,
		CreatedAt:    at,
		UpdatedAt:    at,
	}))
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	seedDocument(t, store, "doc-1", "", domain.StatusPending, at)

	doc, err := store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, "", doc.Team)
	assert.Equal(t, "", doc.Summary)
	assert.True(t, doc.CreatedAt.Equal(at))

	_, err = store.GetByID(ctx, "missing")
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))
}

func TestStoreClaimForProcessingIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, store, "doc-1", "", domain.StatusPending, time.Now())

	first, err := store.ClaimForProcessing(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.ClaimForProcessing(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, second)

	doc, err := store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, doc.Status)
}

func TestStoreUpdatesReportMissingDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.True(t, domain.IsKind(store.UpdateStatus(ctx, "missing", domain.StatusFailed, "x"), domain.ErrDocumentNotFound))
	assert.True(t, domain.IsKind(store.SaveContent(ctx, "missing", "x"), domain.ErrDocumentNotFound))
	assert.True(t, domain.IsKind(store.SaveSummary(ctx, "missing", "x"), domain.ErrDocumentNotFound))
}

func TestStoreUpdateStatusStoresAndClearsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, store, "doc-1", "", domain.StatusPending, time.Now())

	require.NoError(t, store.UpdateStatus(ctx, "doc-1", domain.StatusFailed, "unsupported format"))
	doc, err := store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	assert.Equal(t, "unsupported format", doc.Error)

	require.NoError(t, store.SaveContent(ctx, "doc-1", "body"))
	require.NoError(t, store.SaveSummary(ctx, "doc-1", "short"))
	require.NoError(t, store.UpdateStatus(ctx, "doc-1", domain.StatusCompleted, ""))
	doc, err = store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "", doc.Error)
	assert.Equal(t, "body", doc.Content)
	assert.Equal(t, "short", doc.Summary)
}

func TestStoreQueryFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedDocument(t, store, "old", "eng", domain.StatusCompleted, base)
	seedDocument(t, store, "new", "eng", domain.StatusCompleted, base.Add(time.Hour))
	seedDocument(t, store, "ops", "ops", domain.StatusCompleted, base.Add(2*time.Hour))
	seedDocument(t, store, "pending", "eng", domain.StatusPending, base.Add(3*time.Hour))

	docs, err := store.Query(ctx, domain.DocumentFilter{
		Status:  domain.StatusCompleted,
		Team:    "eng",
		Limit:   3,
		OrderBy: domain.OrderUpdatedAtDesc,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "old", docs[1].ID)

	page, err := store.Query(ctx, domain.DocumentFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "ops", page[0].ID)
	assert.Equal(t, "new", page[1].ID)

	total, err := store.Count(ctx, domain.DocumentFilter{Team: "eng"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestStoreSaveChunksReplacesPreviousSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, store, "doc-1", "", domain.StatusProcessing, time.Now())

	first := []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "a", StartPosition: 0, EndPosition: 1}, Embedding: []float32{1, 0}},
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 1, Content: "b", StartPosition: 1, EndPosition: 2}, Embedding: []float32{0, 1}},
	}
	require.NoError(t, store.SaveChunks(ctx, "doc-1", first))

	second := []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "hello world", StartPosition: 0, EndPosition: 11}, Embedding: []float32{0.6, 0.8}},
	}
	require.NoError(t, store.SaveChunks(ctx, "doc-1", second))

	chunks, err := store.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 11, chunks[0].EndPosition)
	assert.Equal(t, []float32{0.6, 0.8}, chunks[0].Embedding)
	assert.NotEmpty(t, chunks[0].ID)
}

func TestStoreSearchSimilarRanksByBestChunk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedDocument(t, store, "near", "eng", domain.StatusCompleted, now)
	seedDocument(t, store, "far", "eng", domain.StatusCompleted, now)
	seedDocument(t, store, "other-team", "ops", domain.StatusCompleted, now)

	require.NoError(t, store.SaveChunks(ctx, "near", []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "x"}, Embedding: []float32{0, 1}},
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 1, Content: "y"}, Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.SaveChunks(ctx, "far", []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "z"}, Embedding: []float32{0.5, 0.5}},
	}))
	require.NoError(t, store.SaveChunks(ctx, "other-team", []domain.PreparedChunk{
		{ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "w"}, Embedding: []float32{1, 0}},
	}))

	docs, err := store.SearchSimilar(ctx, []float32{1, 0}, domain.DocumentFilter{
		Status: domain.StatusCompleted,
		Team:   "eng",
		Limit:  3,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "near", docs[0].ID)
	assert.Equal(t, "far", docs[1].ID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, -1.0, cosine([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
}
