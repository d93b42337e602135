package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/xlsx"
)

// Parser converts raw file bytes into text.
type Parser interface {
	Parse(ctx context.Context, data []byte) (string, error)
}

// Router picks a Parser by file extension.
type Router struct {
	storage  ports.ObjectStorage
	parsers  map[string]Parser
	maxBytes int64
	logger   *slog.Logger
}

// NewRouter wires the default parsers. maxBytes caps how much of a stored
// file is read; zero means no cap.
func NewRouter(storage ports.ObjectStorage, maxBytes int64, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		storage:  storage,
		parsers:  make(map[string]Parser),
		maxBytes: maxBytes,
		logger:   logger,
	}
	r.Register(".txt", plaintext.New())
	r.Register(".pdf", pdf.New())
	r.Register(".docx", docx.New())
	r.Register(".doc", docx.NewLegacy())
	r.Register(".xlsx", xlsx.New())
	return r
}

func (r *Router) Register(ext string, parser Parser) {
	r.parsers[strings.ToLower(ext)] = parser
}

// Supports reports whether a parser exists for the extension of name.
func (r *Router) Supports(name string) bool {
	_, ok := r.parsers[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	ext := strings.ToLower(filepath.Ext(doc.FilePath))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(doc.OriginalName))
	}
	parser, ok := r.parsers[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract content", fmt.Errorf("unsupported file type: %q", ext))
	}

	r.logger.Info("parsing_document", "document_id", doc.ID, "file_path", doc.FilePath, "mime_type", doc.MimeType)

	reader, err := r.storage.Open(ctx, doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if r.maxBytes > 0 {
		src = io.LimitReader(reader, r.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if r.maxBytes > 0 && int64(len(raw)) > r.maxBytes {
		return "", domain.WrapError(domain.ErrExtractionFailed, "read source document", fmt.Errorf("file exceeds %d bytes", r.maxBytes))
	}

	text, err := parser.Parse(ctx, raw)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtractionFailed) || domain.IsKind(err, domain.ErrUnsupportedFormat) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrExtractionFailed, "parse "+ext, err)
	}
	return cleanText(text), nil
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
