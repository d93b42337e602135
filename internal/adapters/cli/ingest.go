package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func newIngestCommand(resolve resolver) *cobra.Command {
	var (
		team       string
		uploadedBy string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Upload a document and wait until it is processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolve(cmd)
			if err != nil {
				return err
			}
			doc, err := ingestFile(cmd.Context(), svc, args[0], team, uploadedBy, timeout)
			if doc != nil {
				printDocument(cmd, doc)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "Team that owns the document")
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", os.Getenv("USER"), "Uploader name")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for processing")
	return cmd
}

func ingestFile(ctx context.Context, svc *Services, path, team, uploadedBy string, timeout time.Duration) (*domain.Document, error) {
	if svc.Events == nil {
		return nil, errors.New("status events not configured")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	// Subscribe before uploading so a fast worker cannot finish unseen.
	events, cancel := svc.Events.Subscribe()
	defer cancel()

	doc, err := svc.Ingestor.Upload(ctx, domain.UploadRequest{
		Filename:   filepath.Base(path),
		MimeType:   mime.TypeByExtension(filepath.Ext(path)),
		Size:       info.Size(),
		Body:       file,
		Team:       team,
		UploadedBy: uploadedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	waitCtx, stop := context.WithTimeout(ctx, timeout)
	defer stop()
	for {
		select {
		case <-waitCtx.Done():
			return doc, fmt.Errorf("waiting for document %s: %w", doc.ID, waitCtx.Err())
		case event, ok := <-events:
			if !ok {
				return doc, errors.New("status stream closed")
			}
			if event.DocumentID != doc.ID || !event.Status.Terminal() {
				continue
			}
			final, err := svc.Reader.GetByID(ctx, doc.ID)
			if err != nil {
				return doc, err
			}
			if final.Status == domain.StatusFailed {
				return final, fmt.Errorf("processing failed: %s", final.Error)
			}
			return final, nil
		}
	}
}
