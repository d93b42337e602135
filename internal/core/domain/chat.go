package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   int
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   *TokenUsage
}

// LastUserMessage returns the content of the latest user turn.
func (r ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	if len(r.Messages) > 0 {
		return r.Messages[len(r.Messages)-1].Content
	}
	return ""
}

// RetrievalMode selects how QA picks its context documents.
type RetrievalMode string

const (
	RetrievalRecency    RetrievalMode = "recency"
	RetrievalSimilarity RetrievalMode = "similarity"
)

// Answer is a QA result. Sources keep selection order.
type Answer struct {
	Answer  string        `json:"answer"`
	Model   string        `json:"model"`
	Mode    RetrievalMode `json:"retrieval_mode"`
	Sources []Document    `json:"sources"`
}
