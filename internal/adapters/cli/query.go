package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func newAskCommand(resolve resolver) *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against processed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolve(cmd)
			if err != nil {
				return err
			}
			answer, err := svc.QA.Ask(cmd.Context(), strings.Join(args, " "), team)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			cmd.Println(answer.Answer)
			cmd.Printf("\nmodel: %s  retrieval: %s\n", answer.Model, answer.Mode)
			if len(answer.Sources) > 0 {
				cmd.Println("sources:")
				for _, doc := range answer.Sources {
					cmd.Printf("  %s  %s\n", doc.ID, doc.OriginalName)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "Only use documents of this team")
	return cmd
}

func newGetCommand(resolve resolver) *cobra.Command {
	var withContent bool
	cmd := &cobra.Command{
		Use:   "get [doc-id]",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolve(cmd)
			if err != nil {
				return err
			}
			doc, err := svc.Reader.GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}
			printDocument(cmd, doc)
			if withContent && doc.Content != "" {
				cmd.Printf("\n%s\n", doc.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withContent, "content", false, "Print the extracted text")
	return cmd
}

func newListCommand(resolve resolver) *cobra.Command {
	var (
		team   string
		status string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolve(cmd)
			if err != nil {
				return err
			}
			result, err := svc.Reader.List(cmd.Context(), domain.ListRequest{
				Team:   team,
				Status: domain.DocumentStatus(status),
				Page:   page,
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			if len(result.Data) == 0 {
				cmd.Println("No documents found.")
				return nil
			}
			for _, doc := range result.Data {
				cmd.Printf("%s  %-10s  %-12s  %s\n", doc.ID, doc.Status, doc.TeamLabel(), doc.OriginalName)
			}
			cmd.Printf("\npage %d, %d of %d documents\n", result.Page, len(result.Data), result.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "Filter by team")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")
	return cmd
}

func printDocument(cmd *cobra.Command, doc *domain.Document) {
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Name:     %s\n", doc.OriginalName)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Team:     %s\n", doc.TeamLabel())
	cmd.Printf("  Size:     %d bytes\n", doc.FileSize)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	if doc.Error != "" {
		cmd.Printf("  Error:    %s\n", doc.Error)
	}
	if doc.Summary != "" {
		cmd.Printf("\n  Summary:  %s\n", doc.Summary)
	}
}
