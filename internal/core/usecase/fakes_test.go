package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

// memRepo is a DocumentRepository and ChunkStore kept in memory.
type memRepo struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	chunks      map[string][]domain.PreparedChunk
	statusCalls []statusCall
	saveChunks  int

	createErr     error
	queryErr      error
	saveChunksErr error
	failStatusErr error
	similar       []domain.Document
	similarVector []float32
	lastFilter    domain.DocumentFilter
}

func newMemRepo(docs ...domain.Document) *memRepo {
	r := &memRepo{
		docs:   make(map[string]*domain.Document),
		chunks: make(map[string][]domain.PreparedChunk),
	}
	for i := range docs {
		doc := docs[i]
		r.docs[doc.ID] = &doc
	}
	return r
}

func (r *memRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copyDoc := *doc
	r.docs[doc.ID] = &copyDoc
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memRepo) ClaimForProcessing(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != domain.StatusPending {
		return false, nil
	}
	doc.Status = domain.StatusProcessing
	r.statusCalls = append(r.statusCalls, statusCall{status: domain.StatusProcessing})
	return true, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCalls = append(r.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && r.failStatusErr != nil {
		return r.failStatusErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (r *memRepo) SaveContent(_ context.Context, id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save content", errors.New(id))
	}
	doc.Content = content
	return nil
}

func (r *memRepo) SaveSummary(_ context.Context, id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save summary", errors.New(id))
	}
	doc.Summary = summary
	return nil
}

func (r *memRepo) matching(filter domain.DocumentFilter) []domain.Document {
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Team != "" && doc.Team != filter.Team {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.OrderBy == domain.OrderUpdatedAtDesc {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memRepo) Query(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	out := r.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Document{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) Count(_ context.Context, filter domain.DocumentFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(filter)), nil
}

func (r *memRepo) SaveChunks(_ context.Context, documentID string, chunks []domain.PreparedChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveChunks++
	if r.saveChunksErr != nil {
		return r.saveChunksErr
	}
	r.chunks[documentID] = append([]domain.PreparedChunk(nil), chunks...)
	return nil
}

func (r *memRepo) ListChunks(_ context.Context, documentID string) ([]domain.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DocumentChunk, 0, len(r.chunks[documentID]))
	for _, c := range r.chunks[documentID] {
		out = append(out, domain.DocumentChunk{DocumentID: documentID, PreparedChunk: c})
	}
	return out, nil
}

func (r *memRepo) SearchSimilar(_ context.Context, vector []float32, filter domain.DocumentFilter) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.similarVector = vector
	r.lastFilter = filter
	return r.similar, nil
}

func (r *memRepo) doc(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.docs[id]
}

type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	saveErr error
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrExtractionFailed, "open", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type queueFake struct {
	events []domain.UploadEvent
	err    error
}

func (q *queueFake) PublishDocumentUploaded(_ context.Context, event domain.UploadEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, event)
	return nil
}

func (q *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, domain.UploadEvent) error) error {
	return errors.New("not implemented")
}

type notifierFake struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (n *notifierFake) NotifyStatus(_ context.Context, event domain.StatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *notifierFake) statuses() []domain.DocumentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.DocumentStatus, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

// extractorFake resolves text by file extension; unknown extensions fail the
// way the real router does.
type extractorFake struct {
	text  string
	err   error
	calls int
}

func (f *extractorFake) Extract(_ context.Context, doc *domain.Document) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if strings.HasSuffix(doc.FilePath, ".xyz") {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract", errors.New(".xyz"))
	}
	return f.text, nil
}

type chunkerFake struct {
	segments []domain.ChunkSegment
}

func (c *chunkerFake) Split(text string) []domain.ChunkSegment {
	if c.segments != nil {
		return c.segments
	}
	if text == "" {
		return []domain.ChunkSegment{}
	}
	return []domain.ChunkSegment{{ChunkIndex: 0, Content: text, StartPosition: 0, EndPosition: len([]rune(text))}}
}

type embedderFake struct {
	mu     sync.Mutex
	calls  []string
	err    error
	failOn string
}

func (e *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.err != nil || (e.failOn != "" && text == e.failOn) {
		if e.err != nil {
			return nil, e.err
		}
		return nil, errors.New("embed failed")
	}
	return []float32{float32(len(text)), 1}, nil
}

type chatFake struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	resp     domain.ChatResponse
	err      error
}

func (c *chatFake) Chat(_ context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return domain.ChatResponse{}, c.err
	}
	return c.resp, nil
}
