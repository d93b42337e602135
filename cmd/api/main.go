package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docqa/internal/adapters/http"
	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/observability/logging"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("docqa-api", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("docqa-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		if err := app.RelayStatus(ctx); err != nil {
			logger.Error("status_relay_failed", "error", err)
		}
	}()
	if app.InProcessQueue() {
		workerMetrics := metrics.NewWorkerMetrics("docqa-api")
		go func() {
			if err := app.RunWorker(ctx, workerMetrics); err != nil {
				logger.Error("embedded_worker_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(
		cfg,
		app.IngestUC,
		app.QA,
		app.Documents,
		app.Events,
		metrics.NewAPIMetrics("docqa-api"),
		logger,
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		// Zero keeps the event stream open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
