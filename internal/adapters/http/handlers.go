package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const multipartMemory = 8 << 20

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxFileSize
	if maxBytes > 0 {
		// Headroom for multipart framing and the text fields.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordUpload(err)
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", maxBytes)))
			return
		}
		rt.recordUpload(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(r.Context(), domain.UploadRequest{
		Filename:   fileHeader.Filename,
		MimeType:   fileHeader.Header.Get("Content-Type"),
		Size:       fileHeader.Size,
		Body:       file,
		Team:       r.FormValue("team"),
		UploadedBy: r.FormValue("uploaded_by"),
	})
	rt.recordUpload(err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) recordUpload(err error) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(err)
	}
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("page: %w", err)))
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("limit: %w", err)))
		return
	}

	result, err := rt.docs.List(r.Context(), domain.ListRequest{
		Team:   q.Get("team"),
		Status: domain.DocumentStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocumentContent(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      doc.ID,
		"status":  doc.Status,
		"content": doc.Content,
	})
}

func (rt *Router) listDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chunks, err := rt.docs.ListChunks(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"chunks":      chunks,
	})
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Team     string `json:"team"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	answer, err := rt.qa.Ask(r.Context(), req.Question, req.Team)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(string(answer.Mode), answer.Model, len(answer.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
