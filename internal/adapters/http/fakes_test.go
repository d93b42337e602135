package httpadapter

import (
	"context"
	"io"
	"sync"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
)

type ingestFake struct {
	mu      sync.Mutex
	err     error
	got     domain.UploadRequest
	content []byte
}

func (f *ingestFake) Upload(_ context.Context, req domain.UploadRequest) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.got = req
	f.content = body
	return &domain.Document{
		ID:           "doc-1",
		Filename:     "doc-1.txt",
		OriginalName: req.Filename,
		MimeType:     req.MimeType,
		FileSize:     int64(len(body)),
		Status:       domain.StatusPending,
		Team:         req.Team,
		UploadedBy:   req.UploadedBy,
	}, nil
}

type docsFake struct {
	err      error
	doc      *domain.Document
	chunks   []domain.DocumentChunk
	lastList domain.ListRequest
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc != nil {
		return f.doc, nil
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", Status: domain.StatusCompleted}, nil
}

func (f *docsFake) List(_ context.Context, req domain.ListRequest) (*domain.DocumentPage, error) {
	f.lastList = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentPage{Data: []domain.Document{}, Total: 0, Page: 1, Limit: 10}, nil
}

func (f *docsFake) ListChunks(context.Context, string) ([]domain.DocumentChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type qaFake struct {
	err         error
	gotQuestion string
	gotTeam     string
}

func (f *qaFake) Ask(_ context.Context, question, team string) (*domain.Answer, error) {
	f.gotQuestion = question
	f.gotTeam = team
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{
		Answer:  "ok",
		Model:   "gpt-test",
		Mode:    domain.RetrievalRecency,
		Sources: []domain.Document{},
	}, nil
}

type eventsFake struct {
	ch chan domain.StatusEvent
}

func (f *eventsFake) Subscribe() (<-chan domain.StatusEvent, func()) {
	return f.ch, func() {}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxFileSize = 1 << 20
	cfg.APIRateLimitRPS = 0
	cfg.APIMaxInFlight = 0
	return cfg
}
