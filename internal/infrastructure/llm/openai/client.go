package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

// Options configures a Client for an OpenAI-compatible endpoint.
type Options struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	ChatPath       string
	EmbeddingPath  string
	Timeout        time.Duration
	Executor       *resilience.Executor
}

type Client struct {
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
	chatPath       string
	embeddingPath  string
	httpClient     *http.Client
	executor       *resilience.Executor
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	chatPath := opts.ChatPath
	if chatPath == "" {
		chatPath = "/chat/completions"
	}
	embeddingPath := opts.EmbeddingPath
	if embeddingPath == "" {
		embeddingPath = "/embeddings"
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
		chatPath:       chatPath,
		embeddingPath:  embeddingPath,
		httpClient:     &http.Client{Timeout: timeout},
		executor:       opts.Executor,
	}
}

type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string             `json:"model"`
	Usage *domain.TokenUsage `json:"usage,omitempty"`
}

// Chat sends the message list to the chat completions endpoint.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}
	payload := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	resp, err := resilience.ExecuteValue(ctx, c.executor, "llm.chat", func(callCtx context.Context) (chatCompletionResponse, error) {
		var out chatCompletionResponse
		err := c.postJSON(callCtx, c.chatPath, payload, &out, "chat")
		return out, err
	}, classifyHTTPError)
	if err != nil {
		return domain.ChatResponse{}, wrapTemporaryIfNeeded("chat", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ChatResponse{}, &MalformedResponseError{Operation: "chat", Reason: "no choices"}
	}

	if resp.Model == "" {
		resp.Model = model
	}
	return domain.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the first embedding of the response.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := embeddingRequest{Input: text, Model: c.embeddingModel}

	resp, err := resilience.ExecuteValue(ctx, c.executor, "llm.embed", func(callCtx context.Context) (embeddingResponse, error) {
		var out embeddingResponse
		err := c.postJSON(callCtx, c.embeddingPath, payload, &out, "embed")
		return out, err
	}, classifyHTTPError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &MalformedResponseError{Operation: "embed", Reason: "empty embedding"}
	}
	return resp.Data[0].Embedding, nil
}

type MalformedResponseError struct {
	Operation string
	Reason    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("llm %s: malformed response: %s", e.Operation, e.Reason)
}

func IsMalformedResponse(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}
