package fallback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// ModelID marks responses synthesized locally instead of by a remote model.
const ModelID = "local-fallback"

var errNoRemote = errors.New("no chat provider configured")

// Chat echoes the last user message when the remote provider fails. In
// production it surfaces ErrLLMUnavailable instead.
type Chat struct {
	remote     ports.ChatProvider
	production bool
	logger     *slog.Logger
}

func NewChat(remote ports.ChatProvider, production bool, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{remote: remote, production: production, logger: logger}
}

func (c *Chat) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	err := errNoRemote
	if c.remote != nil {
		var resp domain.ChatResponse
		resp, err = c.remote.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
	}

	if c.production {
		return domain.ChatResponse{}, domain.WrapError(domain.ErrLLMUnavailable, "chat", err)
	}

	c.logger.Warn("chat_fallback", "error", err)
	return domain.ChatResponse{
		Content: "(local fallback response)\n" +
			"The language model call failed: " + err.Error() + "\n\n" +
			"Your request, returned as-is:\n\n" +
			req.LastUserMessage(),
		Model: ModelID,
	}, nil
}
