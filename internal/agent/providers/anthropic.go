// Package providers adapts LLM backends to the chat orchestrator.
//
// Each provider translates the orchestrator's neutral message and tool
// shapes to one vendor wire format and classifies every failure as an
// *agent.ProviderError so the HTTP surface can map it uniformly. The
// two backends differ in shape, not behavior:
//
//   - OpenAI: the system prompt is an ordinary first message, tool
//     results are separate "tool"-role messages, and tool arguments
//     travel as JSON strings.
//   - Anthropic: the system prompt is a dedicated request field, every
//     message is a list of content blocks, and tool results ride inside
//     the next user message.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements agent.Provider for Anthropic's Messages
// API. Safe for concurrent use; each call is independent.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	retry  retry.Config
}

// AnthropicConfig carries constructor settings for the Anthropic
// provider.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string
	// Model defaults to defaultAnthropicModel.
	Model string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers.
	BaseURL string
	// Retry bounds transient-failure retries per completion call. The
	// zero value means a single attempt.
	Retry retry.Config
}

// NewAnthropicProviderWithConfig creates an Anthropic provider with
// endpoint overrides applied.
func NewAnthropicProviderWithConfig(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	// The retry policy lives in this package; the SDK's built-in
	// retries would multiply attempts.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
		retry:  cfg.Retry,
	}, nil
}

// NewAnthropicProvider creates an Anthropic provider against the
// default endpoint. The API key is required; an empty model falls back
// to defaultAnthropicModel.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	return NewAnthropicProviderWithConfig(AnthropicConfig{APIKey: apiKey, Model: model})
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Model() string { return p.model }

// CreateChatCompletion sends one non-streaming completion request and
// collects text and tool_use blocks from the response.
func (p *AnthropicProvider) CreateChatCompletion(ctx context.Context, req agent.CompletionRequest) (*agent.CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  convertToAnthropicMessages(req.Messages),
	}

	if system := systemPromptFrom(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		tools, err := convertToAnthropicTools(req.Tools)
		if err != nil {
			return nil, agent.NewProviderError(agent.ErrCodeClient, err)
		}
		params.Tools = tools
	}

	msg, err := callWithRetry(ctx, p.retry, func() (*anthropic.Message, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, p.wrapError(err)
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}

	out := &agent.CompletionResponse{
		Usage: models.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	return out, nil
}

// systemPromptFrom extracts the system turn; Anthropic carries it as a
// request field, not a message.
func systemPromptFrom(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

// convertToAnthropicMessages rebuilds the conversation as content
// blocks. Consecutive tool-role messages collapse into one user message
// holding all the tool_result blocks, matching how the API expects
// results to follow a tool_use turn.
func convertToAnthropicMessages(messages []models.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(
				msg.ToolCallID,
				msg.Content,
				toolOutputIsError(msg.Content),
			))
			continue

		case models.RoleAssistant:
			flushResults()
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		default:
			flushResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	flushResults()
	return result
}

// toolOutputIsError peeks at the success flag of an encoded tool output
// so the is_error marker on the result block matches the payload.
func toolOutputIsError(content string) bool {
	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return false
	}
	return !probe.Success
}

func convertToAnthropicTools(tools []agent.Definition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// anthropicErrorPayload is the error body shape returned by the API.
type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := ""
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				code = payload.Error.Type
			}
		}
		return agent.NewProviderError(combineStatusAndCode(apiErr.StatusCode, code), err)
	}
	return agent.NewProviderError(classifyTransport(err), err)
}
