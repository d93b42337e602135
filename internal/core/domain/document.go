package domain

import (
	"io"
	"time"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can happen.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is an uploaded file and everything derived from it.
// Content stays empty while the document is pending.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"original_name"`
	MimeType     string         `json:"mime_type"`
	FileSize     int64          `json:"file_size"`
	FilePath     string         `json:"file_path"`
	Content      string         `json:"-"`
	Summary      string         `json:"summary,omitempty"`
	Status       DocumentStatus `json:"status"`
	Team         string         `json:"team,omitempty"`
	UploadedBy   string         `json:"uploaded_by,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TeamLabel returns the team or the placeholder used in prompts.
func (d Document) TeamLabel() string {
	if d.Team == "" {
		return "unspecified"
	}
	return d.Team
}

type UploadRequest struct {
	Filename   string
	MimeType   string
	Size       int64
	Body       io.Reader
	Team       string
	UploadedBy string
}

type DocumentOrder string

const (
	OrderCreatedAtDesc DocumentOrder = "created_at"
	OrderUpdatedAtDesc DocumentOrder = "updated_at"
)

type DocumentFilter struct {
	Team    string
	Status  DocumentStatus
	Limit   int
	Offset  int
	OrderBy DocumentOrder
}

// ListRequest is a 1-based page of documents for callers outside the core.
type ListRequest struct {
	Team   string
	Status DocumentStatus
	Page   int
	Limit  int
}

type DocumentPage struct {
	Data  []Document `json:"data"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}
