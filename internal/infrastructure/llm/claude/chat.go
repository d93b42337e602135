package claude

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

const defaultMaxTokens = 1024

type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL  string
	Executor *resilience.Executor
}

// Chat implements the chat provider on the Anthropic Messages API.
type Chat struct {
	client    anthropic.Client
	model     string
	maxTokens int
	executor  *resilience.Executor
}

func New(opts Options) *Chat {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// retries go through the shared executor
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Chat{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: maxTokens,
		executor:  opts.Executor,
	}
}

func (c *Chat) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	messages, system := convertMessages(req.Messages)
	if len(messages) == 0 {
		return domain.ChatResponse{}, domain.WrapError(domain.ErrInvalidInput, "anthropic chat", errors.New("no user or assistant messages"))
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := resilience.ExecuteValue(ctx, c.executor, "llm.anthropic.chat", func(callCtx context.Context) (*anthropic.Message, error) {
		return c.client.Messages.New(callCtx, params)
	}, classifyError)
	if err != nil {
		return domain.ChatResponse{}, wrapTemporaryIfNeeded(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return domain.ChatResponse{
		Content: text.String(),
		Model:   string(resp.Model),
		Usage: &domain.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// convertMessages splits system prompts out of the list; the Messages API takes them separately.
func convertMessages(in []domain.ChatMessage) ([]anthropic.MessageParam, string) {
	out := make([]anthropic.MessageParam, 0, len(in))
	var system []string
	for _, msg := range in {
		switch msg.Role {
		case domain.RoleSystem:
			system = append(system, msg.Content)
		case domain.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out, strings.Join(system, "\n\n")
}
