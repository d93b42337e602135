package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

type APIMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal    *prometheus.CounterVec
	qaRequestsTotal *prometheus.CounterVec
	qaNoContext     prometheus.Counter
	qaSources       prometheus.Histogram
	qaDuration      prometheus.Histogram
	eventStreams    prometheus.Gauge
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &APIMetrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "uploads_total",
				Help:      "Document uploads by outcome.",
			},
			[]string{"service", "outcome"},
		),
		qaRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "qa",
				Name:      "requests_total",
				Help:      "Answered questions by retrieval mode and model.",
			},
			[]string{"service", "mode", "model"},
		),
		qaNoContext: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "qa",
			Name:        "no_context_total",
			Help:        "Questions answered without any reference document.",
			ConstLabels: constLabels,
		}),
		qaSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "qa",
			Name:        "sources",
			Help:        "Reference documents per answered question.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8},
			ConstLabels: constLabels,
		}),
		qaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "qa",
			Name:        "duration_seconds",
			Help:        "Question answering duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		eventStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "events",
			Name:        "open_streams",
			Help:        "Open document status event streams.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.uploadsTotal,
		m.qaRequestsTotal,
		m.qaNoContext,
		m.qaSources,
		m.qaDuration,
		m.eventStreams,
	)
	return m
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(m.service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds document ids so label cardinality stays bounded.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/documents/")
	if !ok || rest == "" {
		return path
	}
	switch {
	case strings.HasSuffix(rest, "/content"):
		return "/v1/documents/{id}/content"
	case strings.HasSuffix(rest, "/chunks"):
		return "/v1/documents/{id}/chunks"
	default:
		return "/v1/documents/{id}"
	}
}

func (m *APIMetrics) RecordUpload(err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *APIMetrics) RecordAnswer(mode, model string, sources int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	m.qaRequestsTotal.WithLabelValues(m.service, mode, model).Inc()
	m.qaSources.Observe(float64(sources))
	m.qaDuration.Observe(duration.Seconds())
	if sources == 0 {
		m.qaNoContext.Inc()
	}
}

func (m *APIMetrics) StreamOpened() {
	m.eventStreams.Inc()
}

func (m *APIMetrics) StreamClosed() {
	m.eventStreams.Dec()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
