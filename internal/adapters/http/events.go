package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const sseHeartbeatInterval = 15 * time.Second

// streamDocumentEvents relays status transitions as server-sent events.
// An optional document_id query parameter narrows the stream to one document.
func (rt *Router) streamDocumentEvents(w http.ResponseWriter, r *http.Request) {
	if rt.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event stream is not available"})
		return
	}
	documentID := r.URL.Query().Get("document_id")

	rc := http.NewResponseController(w)
	events, cancel := rt.events.Subscribe()
	defer cancel()

	if rt.metrics != nil {
		rt.metrics.StreamOpened()
		defer rt.metrics.StreamClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		rt.logger.Warn("sse_flush_unsupported", "request_id", requestIDFromContext(r.Context()), "error", err)
		return
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if documentID != "" && event.DocumentID != documentID {
				continue
			}
			if err := writeStatusEvent(w, event); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStatusEvent(w http.ResponseWriter, event domain.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
	return err
}
