package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs remote calls under a Policy. Each operation name gets its
// own circuit breaker.
type Executor struct {
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.normalize(),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// WithLogger replaces the logger used for retry and breaker events.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// ExecuteValue runs fn through e and returns the value of the successful
// attempt. A nil executor calls fn once.
func ExecuteValue[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	call := func(callCtx context.Context) error {
		v, err := fn(callCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	if e == nil {
		return out, call(ctx)
	}
	return out, e.Execute(ctx, operation, call, classifier)
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = ClassifyDomainError
	}

	if e.policy.Breaker.Disabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	retry := e.policy.Retry
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= retry.MaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := retry.backoff(attempt)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", retry.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) error {
	if e.policy.CallTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.CallTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	policy := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClassifyDomainError retries errors already marked temporary and never
// counts caller cancellation against the breaker.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{RecordFailure: true}
	}
}
