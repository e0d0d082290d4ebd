package agent

import (
	"context"

	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// CompletionRequest is a provider-neutral chat completion call. Tools
// may be empty, in which case the model must answer in plain text.
type CompletionRequest struct {
	Messages  []models.Message
	Tools     []Definition
	MaxTokens int
}

// CompletionResponse is the assistant turn returned by a provider.
// ToolCalls is non-empty when the model wants tools invoked before it
// can answer.
type CompletionResponse struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     models.Usage
}

// Provider adapts one LLM backend to the orchestrator. Implementations
// translate messages and tool definitions to the vendor wire format and
// classify failures as *ProviderError.
type Provider interface {
	Name() string
	Model() string
	CreateChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
