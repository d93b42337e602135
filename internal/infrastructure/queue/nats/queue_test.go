package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func TestDecodeUploadEventEnvelope(t *testing.T) {
	event, err := decodeUploadEvent([]byte(`{"document_id":"doc-1","file_path":"doc-1.txt","uploaded_at":"2026-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("decodeUploadEvent() error = %v", err)
	}
	if event.DocumentID != "doc-1" || event.FilePath != "doc-1.txt" || event.UploadedAt.IsZero() {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeUploadEventBareID(t *testing.T) {
	event, err := decodeUploadEvent([]byte(" doc-2\n"))
	if err != nil {
		t.Fatalf("decodeUploadEvent() error = %v", err)
	}
	if event.DocumentID != "doc-2" {
		t.Fatalf("expected doc-2, got %q", event.DocumentID)
	}
}

func TestDecodeUploadEventRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", `{"file_path":"x"}`, `{broken`} {
		if _, err := decodeUploadEvent([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrNoServers); !class.Retryable {
		t.Fatalf("expected no servers to be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected canceled to be neither retryable nor recorded")
	}
	if class := classifyNATSError(errors.New("bad subject")); class.Retryable {
		t.Fatalf("expected unknown error to be non-retryable")
	}
	if class := classifyNATSError(nats.ErrMaxPayload); class.Retryable || class.RecordFailure {
		t.Fatalf("oversized payload must not count against the broker")
	}
	if class := classifyNATSError(nats.ErrConnectionReconnecting); !class.Retryable {
		t.Fatalf("expected reconnecting to be retryable")
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded("publish", nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded("publish", plain); domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("expected non-temporary error, got %v", got)
	}
}
