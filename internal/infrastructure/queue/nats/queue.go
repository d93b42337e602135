package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

const workerGroup = "workers"

type Queue struct {
	conn          *nats.Conn
	subject       string
	statusSubject string
	concurrency   int
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	StatusSubject        string
	Concurrency          int
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docqa"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		subject:       subject,
		statusSubject: options.StatusSubject,
		concurrency:   concurrency,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentUploaded(ctx context.Context, event domain.UploadEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}
	return q.publish(ctx, q.subject, payload)
}

// SubscribeDocumentUploaded consumes upload events in the shared worker group
// until ctx is done, then drains in-flight messages.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error {
	subs := make([]*nats.Subscription, 0, q.concurrency)
	for i := 0; i < q.concurrency; i++ {
		sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			event, err := decodeUploadEvent(msg.Data)
			if err != nil {
				q.logger.Error("upload_event_decode_failed", "subject", msg.Subject, "error", err)
				return
			}

			handlerCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			if err := handler(handlerCtx, event); err != nil {
				q.logger.Error("worker_handler_failed", "document_id", event.DocumentID, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("nats drain subscription: %w", err)
		}
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// NotifyStatus publishes a status transition. Failures are logged only.
func (q *Queue) NotifyStatus(ctx context.Context, event domain.StatusEvent) {
	if q.statusSubject == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		q.logger.Error("status_event_encode_failed", "document_id", event.DocumentID, "error", err)
		return
	}
	if err := q.publish(ctx, q.statusSubject, payload); err != nil {
		q.logger.Warn("status_event_publish_failed", "document_id", event.DocumentID, "status", event.Status, "error", err)
	}
}

// SubscribeStatus fans every status event to handler. Unlike uploads this is
// a plain subscription so each API instance sees all transitions.
func (q *Queue) SubscribeStatus(ctx context.Context, handler func(context.Context, domain.StatusEvent)) error {
	if q.statusSubject == "" {
		<-ctx.Done()
		return nil
	}
	sub, err := q.conn.Subscribe(q.statusSubject, func(msg *nats.Msg) {
		var event domain.StatusEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Error("status_event_decode_failed", "error", err)
			return
		}
		handler(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe status: %w", err)
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats unsubscribe status: %w", err)
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish "+subject, err)
	}
	return nil
}

// decodeUploadEvent accepts the JSON envelope and, for older producers, a
// bare document id.
func decodeUploadEvent(data []byte) (domain.UploadEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return domain.UploadEvent{}, errors.New("empty message")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return domain.UploadEvent{DocumentID: trimmed}, nil
	}
	var event domain.UploadEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return domain.UploadEvent{}, fmt.Errorf("decode upload event: %w", err)
	}
	if event.DocumentID == "" {
		return domain.UploadEvent{}, errors.New("upload event without document id")
	}
	return event, nil
}
