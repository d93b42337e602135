package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kirillkom/docqa/internal/adapters/http/openapi"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

// EventSource hands out status event subscriptions.
type EventSource interface {
	Subscribe() (<-chan domain.StatusEvent, func())
}

type Router struct {
	cfg       config.Config
	ingestUC  ports.DocumentIngestor
	docs      ports.DocumentReader
	qa        ports.QuestionAnswerer
	events    EventSource
	metrics   *metrics.APIMetrics
	logger    *slog.Logger
	validator *requestValidator
}

// NewRouter wires the HTTP surface. events and apiMetrics may be nil.
func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	qa ports.QuestionAnswerer,
	docs ports.DocumentReader,
	events EventSource,
	apiMetrics *metrics.APIMetrics,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	contract, err := openapi.Load(context.Background())
	if err != nil {
		panic(err)
	}
	validator, err := newRequestValidator(contract)
	if err != nil {
		panic(err)
	}
	return &Router{
		cfg:       cfg,
		ingestUC:  ingestUC,
		docs:      docs,
		qa:        qa,
		events:    events,
		metrics:   apiMetrics,
		logger:    logger,
		validator: validator,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	api.HandleFunc("GET /v1/documents/{id}/content", rt.getDocumentContent)
	api.HandleFunc("GET /v1/documents/{id}/chunks", rt.listDocumentChunks)
	api.HandleFunc("POST /v1/qa/ask", rt.askQuestion)
	bounded := backpressureMiddleware(rt.validator.middleware(api), rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait())

	// Status streams stay open for as long as the client watches, so they
	// do not take in-flight slots.
	v1 := http.NewServeMux()
	v1.Handle("GET /v1/events/documents", rt.validator.middleware(http.HandlerFunc(rt.streamDocumentEvents)))
	v1.Handle("/", bounded)
	mux.Handle("/v1/", rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = recoverMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Document())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
