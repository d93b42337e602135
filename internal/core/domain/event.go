package domain

import "time"

// UploadEvent triggers processing of one freshly uploaded document.
type UploadEvent struct {
	DocumentID string    `json:"document_id"`
	FilePath   string    `json:"file_path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type StatusEvent struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}
