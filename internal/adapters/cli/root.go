// Package cli implements the docctl operator commands.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// EventSource hands out status event subscriptions.
type EventSource interface {
	Subscribe() (<-chan domain.StatusEvent, func())
}

// Services are the use cases the commands drive. Events is only needed by
// ingest.
type Services struct {
	Ingestor ports.DocumentIngestor
	Reader   ports.DocumentReader
	QA       ports.QuestionAnswerer
	Events   EventSource
}

// NewRootCommand builds the docctl command tree. services is resolved lazily
// so that --help works without a database.
func NewRootCommand(services func(ctx context.Context) (*Services, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operate the document QA pipeline",
		Long:          `Upload documents, inspect their processing state and ask questions against them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	resolve := func(cmd *cobra.Command) (*Services, error) {
		if services == nil {
			return nil, errors.New("services not configured")
		}
		return services(cmd.Context())
	}

	root.AddCommand(
		newIngestCommand(resolve),
		newAskCommand(resolve),
		newGetCommand(resolve),
		newListCommand(resolve),
	)
	return root
}

type resolver func(cmd *cobra.Command) (*Services, error)
