package main

import (
	"context"
	"os"

	mcpadapter "github.com/kirillkom/docqa/internal/adapters/mcp"
	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(os.Stderr, "docqa-mcp", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger := logging.NewLogger(os.Stderr, "docqa-mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.QA, app.Documents, version, logger)
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
