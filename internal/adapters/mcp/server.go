// Package mcpadapter exposes document QA to agents as MCP tools.
package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	serverName     = "docqa"
	defaultListMax = 10
)

type Server struct {
	qa     ports.QuestionAnswerer
	docs   ports.DocumentReader
	logger *slog.Logger
	mcp    *server.MCPServer
}

func NewServer(qa ports.QuestionAnswerer, docs ports.DocumentReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		qa:     qa,
		docs:   docs,
		logger: logger,
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.mcp.AddTool(askDocumentsTool(), s.handleAskDocuments)
	s.mcp.AddTool(getDocumentTool(), s.handleGetDocument)
	s.mcp.AddTool(listDocumentsTool(), s.handleListDocuments)
	return s
}

// ServeStdio blocks until stdin closes. Logs must not go to stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func askDocumentsTool() mcp.Tool {
	return mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the processed internal documents"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question in natural language"),
		),
		mcp.WithString("team",
			mcp.Description("Restrict the reference documents to one team"),
		),
	)
}

func getDocumentTool() mcp.Tool {
	return mcp.NewTool("get_document",
		mcp.WithDescription("Fetch one document with its status, summary and extracted content"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document id returned by upload"),
		),
	)
}

func listDocumentsTool() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List documents, newest first"),
		mcp.WithString("team", mcp.Description("Filter by team")),
		mcp.WithString("status",
			mcp.Description("Filter by processing status"),
			mcp.Enum("pending", "processing", "completed", "failed"),
		),
		mcp.WithNumber("page", mcp.Description("1-based page (default: 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default: 10, max: 100)")),
	)
}

func (s *Server) handleAskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	team := request.GetString("team", "")

	answer, err := s.qa.Ask(ctx, question, team)
	if err != nil {
		s.logger.Error("mcp_ask_failed", "team", team, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("document_id parameter is required"), nil
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if !domain.IsKind(err, domain.ErrDocumentNotFound) {
			s.logger.Error("mcp_get_document_failed", "document_id", id, "error", err)
		}
		return mcp.NewToolResultError(fmt.Sprintf("get document: %v", err)), nil
	}
	return mcp.NewToolResultText(formatDocument(doc)), nil
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.docs.List(ctx, domain.ListRequest{
		Team:   request.GetString("team", ""),
		Status: domain.DocumentStatus(request.GetString("status", "")),
		Page:   request.GetInt("page", 1),
		Limit:  request.GetInt("limit", defaultListMax),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list documents: %v", err)), nil
	}
	return mcp.NewToolResultText(formatPage(page)), nil
}

func formatAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Answer)
	if len(answer.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:\n")
	for _, doc := range answer.Sources {
		fmt.Fprintf(&b, "- %s (%s, team: %s)\n", doc.OriginalName, doc.ID, doc.TeamLabel())
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDocument(doc *domain.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.OriginalName)
	fmt.Fprintf(&b, "id: %s\nstatus: %s\nteam: %s\n", doc.ID, doc.Status, doc.TeamLabel())
	if doc.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", doc.Error)
	}
	if doc.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", doc.Summary)
	}
	if doc.Content != "" {
		fmt.Fprintf(&b, "\n## Content\n\n%s\n", doc.Content)
	}
	return b.String()
}

func formatPage(page *domain.DocumentPage) string {
	if len(page.Data) == 0 {
		return "No documents found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d documents (page %d):\n", len(page.Data), page.Total, page.Page)
	for _, doc := range page.Data {
		fmt.Fprintf(&b, "- %s  %s  [%s]  team: %s\n", doc.ID, doc.OriginalName, doc.Status, doc.TeamLabel())
	}
	return strings.TrimRight(b.String(), "\n")
}
