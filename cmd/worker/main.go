package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/observability/logging"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("docqa-worker", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("docqa-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	if app.InProcessQueue() {
		logger.Warn("worker_inproc_queue", "detail", "in-process queue only receives events published by this process")
	}

	workerMetrics := metrics.NewWorkerMetrics("docqa-worker")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", workerMetrics.Handler())
	metricsMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_started",
		"queue_driver", cfg.QueueDriver,
		"subject", cfg.NATSSubject,
		"concurrency", cfg.WorkerConcurrency,
	)
	if err := app.RunWorker(ctx, workerMetrics); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("worker_stopped")
}
