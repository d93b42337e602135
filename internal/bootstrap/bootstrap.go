package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/usecase"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/claude"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/fallback"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docqa/internal/infrastructure/notify"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/inproc"
	natsqueue "github.com/kirillkom/docqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

type Options struct {
	// InProcessQueue overrides QUEUE_DRIVER, for the CLI.
	InProcessQueue bool
}

type store interface {
	ports.DocumentRepository
	ports.ChunkStore
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo   ports.DocumentRepository
	Chunks ports.ChunkStore
	Queue  ports.MessageQueue
	// Events receives every status transition visible to this process.
	Events *notify.Broadcaster

	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	Documents *usecase.DocumentQueryUseCase
	QA        *usecase.QAService

	nats    *natsqueue.Queue
	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	st, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Repo = st
	app.Chunks = st

	storage, err := localfs.New(cfg.UploadPath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	app.Events = notify.NewBroadcaster(logger)
	var notifier ports.StatusNotifier = app.Events

	queueDriver := cfg.QueueDriver
	if opts.InProcessQueue {
		queueDriver = "inproc"
	}
	switch queueDriver {
	case "nats":
		q, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			StatusSubject:      cfg.NATSStatusSubject,
			Concurrency:        cfg.WorkerConcurrency,
			ResilienceExecutor: resilience.NewExecutor(resilience.PublishPolicy()).WithLogger(logger),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.nats = q
		app.Queue = q
		if cfg.NATSStatusSubject != "" {
			// Transitions travel through NATS and come back via RelayStatus.
			notifier = q
		}
		app.closers = append(app.closers, q.Close)
	default:
		q := inproc.New(0, cfg.WorkerConcurrency, logger)
		app.Queue = q
		app.closers = append(app.closers, q.Close)
	}

	embedder, chat, model := newProviders(cfg, logger)

	service := usecase.NewDocumentProcessingService(
		extractor.NewRouter(storage, cfg.MaxFileSize, logger),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		chat,
		usecase.ProcessingOptions{
			SummaryMaxChars:  cfg.SummaryMaxChars,
			EmbedConcurrency: cfg.EmbedConcurrency,
		},
		logger,
	)

	app.IngestUC = usecase.NewIngestDocumentUseCase(st, storage, app.Queue, notifier, cfg.MaxFileSize, logger)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(st, st, service, notifier, cfg.ProcessTimeout(), logger)
	app.Documents = usecase.NewDocumentQueryUseCase(st, st)
	app.QA = usecase.NewQAService(st, st, embedder, chat, usecase.QAOptions{
		MaxDocuments: cfg.QAMaxDocuments,
		PreviewChars: cfg.QAPreviewChars,
		Mode:         domain.RetrievalMode(cfg.QARetrievalMode),
		Model:        model,
	}, logger)

	logger.Info("app_initialized",
		"store_driver", cfg.StoreDriver,
		"queue_driver", queueDriver,
		"llm_provider", cfg.LLMProvider,
		"retrieval_mode", cfg.QARetrievalMode,
	)
	ok = true
	return app, nil
}

func (a *App) openStore(ctx context.Context) (store, error) {
	switch a.Config.StoreDriver {
	case "sqlite":
		st, err := sqlite.Open(a.Config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = st.Close() })
		return st, nil
	default:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx, a.Config.VectorDimension); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	}
}

// newProviders picks the remote LLM backends and wraps them in the local
// fallbacks. The returned model is the configured chat model name.
func newProviders(cfg config.Config, logger *slog.Logger) (ports.EmbeddingProvider, ports.ChatProvider, string) {
	executor := resilience.NewExecutor(resilience.LLMPolicy(cfg.LLMTimeout())).WithLogger(logger)

	var (
		remoteEmbed ports.EmbeddingProvider
		remoteChat  ports.ChatProvider
		model       = cfg.LLMModel
	)
	switch cfg.LLMProvider {
	case "openai":
		client := openai.New(openai.Options{
			BaseURL:        cfg.LLMBaseURL,
			APIKey:         cfg.LLMAPIKey,
			ChatModel:      cfg.LLMModel,
			EmbeddingModel: cfg.LLMEmbeddingModel,
			ChatPath:       cfg.LLMChatPath,
			EmbeddingPath:  cfg.LLMEmbeddingPath,
			Timeout:        cfg.LLMTimeout(),
			Executor:       executor,
		})
		remoteEmbed = client
		remoteChat = client
	case "anthropic":
		// Anthropic has no embeddings endpoint; vectors stay local.
		remoteChat = claude.New(claude.Options{
			APIKey:   cfg.AnthropicAPIKey,
			Model:    cfg.AnthropicModel,
			Executor: executor,
		})
		model = cfg.AnthropicModel
	default:
		model = fallback.ModelID
	}

	embedder := fallback.NewEmbedder(remoteEmbed, cfg.VectorDimension, logger)
	chat := fallback.NewChat(remoteChat, cfg.IsProduction(), logger)
	return embedder, chat, model
}

// RunWorker consumes upload events until ctx is done. workerMetrics may be nil.
func (a *App) RunWorker(ctx context.Context, workerMetrics *metrics.WorkerMetrics) error {
	err := a.Queue.SubscribeDocumentUploaded(ctx, func(handlerCtx context.Context, event domain.UploadEvent) error {
		if workerMetrics == nil {
			return a.ProcessUC.HandleUploadEvent(handlerCtx, event)
		}
		if !event.UploadedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(event.UploadedAt))
		}
		workerMetrics.StartDocument()
		start := time.Now()
		err := a.ProcessUC.HandleUploadEvent(handlerCtx, event)
		workerMetrics.FinishDocument(time.Since(start), err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RelayStatus copies status events published by workers on NATS into the
// local broadcaster. Without NATS every transition is already local and it
// just waits for ctx.
func (a *App) RelayStatus(ctx context.Context) error {
	if a.nats == nil {
		<-ctx.Done()
		return nil
	}
	return a.nats.SubscribeStatus(ctx, a.Events.NotifyStatus)
}

// InProcessQueue reports whether upload events stay inside this process.
func (a *App) InProcessQueue() bool {
	return a.nats == nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
