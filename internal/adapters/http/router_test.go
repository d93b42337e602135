package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

func newUploadRequest(t *testing.T, filename, contentType string, body []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadDocumentReturnsAccepted(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(testConfig(), ingest, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := newUploadRequest(t, "notes.txt", "text/plain", []byte("hello world"), map[string]string{
		"team":        "eng",
		"uploaded_by": "alice",
	})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if ingest.got.Filename != "notes.txt" || ingest.got.Team != "eng" || ingest.got.UploadedBy != "alice" {
		t.Fatalf("unexpected upload request: %+v", ingest.got)
	}
	if string(ingest.content) != "hello world" {
		t.Fatalf("unexpected body %q", ingest.content)
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", doc.Status)
	}
}

func TestUploadDocumentWithoutFileReturns400(t *testing.T) {
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("team", "eng")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMapsUnsupportedFormatTo415(t *testing.T) {
	ingest := &ingestFake{err: domain.WrapError(domain.ErrUnsupportedFormat, "upload", errors.New("image/png"))}
	handler := NewRouter(testConfig(), ingest, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := newUploadRequest(t, "a.png", "image/png", []byte{0x89, 0x50}, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
}

func TestUploadDocumentRejectsOversizedBody(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFileSize = 16
	handler := NewRouter(cfg, &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := newUploadRequest(t, "big.txt", "text/plain", bytes.Repeat([]byte("x"), 2<<20), nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	docs := &docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))}
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, docs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(body["error"], "document not found") {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestGetDocumentContentIncludesExtractedText(t *testing.T) {
	docs := &docsFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusCompleted, Content: "hello world"}}
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, docs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/content", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["content"] != "hello world" || body["status"] != "completed" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListDocumentChunks(t *testing.T) {
	docs := &docsFake{chunks: []domain.DocumentChunk{{
		ID:         "c1",
		DocumentID: "doc-1",
		PreparedChunk: domain.PreparedChunk{
			ChunkSegment: domain.ChunkSegment{ChunkIndex: 0, Content: "hello"},
		},
	}}}
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, docs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/chunks", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		DocumentID string                 `json:"document_id"`
		Chunks     []domain.DocumentChunk `json:"chunks"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DocumentID != "doc-1" || len(body.Chunks) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestListDocumentsPassesQueryParameters(t *testing.T) {
	docs := &docsFake{}
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, docs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?team=eng&status=completed&page=2&limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	want := domain.ListRequest{Team: "eng", Status: domain.StatusCompleted, Page: 2, Limit: 5}
	if docs.lastList != want {
		t.Fatalf("expected %+v, got %+v", want, docs.lastList)
	}
}

func TestListDocumentsRejectsUnknownStatus(t *testing.T) {
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?status=archived", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskQuestionReturnsAnswer(t *testing.T) {
	qa := &qaFake{}
	apiMetrics := metrics.NewAPIMetrics("docqa-api-test")
	handler := NewRouter(testConfig(), &ingestFake{}, qa, &docsFake{}, nil, apiMetrics, nil).Handler()

	payload, _ := json.Marshal(map[string]string{"question": "What is the policy?", "team": "eng"})
	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if qa.gotQuestion != "What is the policy?" || qa.gotTeam != "eng" {
		t.Fatalf("unexpected ask args: %q %q", qa.gotQuestion, qa.gotTeam)
	}
	var answer domain.Answer
	if err := json.Unmarshal(res.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Answer != "ok" || answer.Mode != domain.RetrievalRecency {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestAskQuestionMissingQuestionReturns400(t *testing.T) {
	qa := &qaFake{}
	handler := NewRouter(testConfig(), &ingestFake{}, qa, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", strings.NewReader(`{"team":"eng"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if qa.gotQuestion != "" {
		t.Fatalf("qa must not be called, got %q", qa.gotQuestion)
	}
}

func TestAskQuestionMapsLLMUnavailableTo503(t *testing.T) {
	qa := &qaFake{err: domain.WrapError(domain.ErrLLMUnavailable, "chat", errors.New("no provider"))}
	handler := NewRouter(testConfig(), &ingestFake{}, qa, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestAskQuestionMapsInvalidInputTo400(t *testing.T) {
	qa := &qaFake{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("bad question"))}
	handler := NewRouter(testConfig(), &ingestFake{}, qa, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", strings.NewReader(`{"question":"   x"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMethodNotAllowedOnKnownPath(t *testing.T) {
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/qa/ask", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	handler := NewRouter(testConfig(), &ingestFake{}, &qaFake{}, &docsFake{}, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("unexpected openapi response: %d", res.Code)
	}
}
