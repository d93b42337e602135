package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kirillkom/docqa/internal/adapters/cli"
	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		app  *bootstrap.App
		once sync.Once
		err  error
	)
	services := func(ctx context.Context) (*cli.Services, error) {
		once.Do(func() {
			var cfg config.Config
			cfg, err = config.Load()
			if err != nil {
				return
			}
			logger := logging.NewLogger(os.Stderr, "docctl", cfg.LogLevel)
			app, err = bootstrap.New(ctx, cfg, logger, bootstrap.Options{InProcessQueue: true})
			if err != nil {
				return
			}
			go func() {
				if err := app.RunWorker(ctx, nil); err != nil {
					logger.Error("worker_failed", "error", err)
				}
			}()
		})
		if err != nil {
			return nil, err
		}
		return &cli.Services{
			Ingestor: app.IngestUC,
			Reader:   app.Documents,
			QA:       app.QA,
			Events:   app.Events,
		}, nil
	}

	root := cli.NewRootCommand(services)
	root.SetOut(os.Stdout)
	execErr := root.ExecuteContext(ctx)
	stop()
	if app != nil {
		app.Close()
	}
	if execErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", execErr)
		os.Exit(1)
	}
}
