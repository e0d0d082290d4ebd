package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements agent.Provider for OpenAI's chat completion
// API. Safe for concurrent use; each call is independent.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	retry  retry.Config
}

// OpenAIConfig carries constructor settings for the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string
	// Model defaults to defaultOpenAIModel.
	Model string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers.
	BaseURL string
	// Retry bounds transient-failure retries per completion call. The
	// zero value means a single attempt.
	Retry retry.Config
}

// NewOpenAIProviderWithConfig creates an OpenAI provider with endpoint
// overrides applied.
func NewOpenAIProviderWithConfig(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		retry:  cfg.Retry,
	}, nil
}

// NewOpenAIProvider creates an OpenAI provider against the default
// endpoint. The API key is required; an empty model falls back to
// defaultOpenAIModel.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	return NewOpenAIProviderWithConfig(OpenAIConfig{APIKey: apiKey, Model: model})
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Model() string { return p.model }

// CreateChatCompletion sends one non-streaming completion request.
// When tools are attached, tool_choice is left at "auto" so the model
// decides between answering and calling.
func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, req agent.CompletionRequest) (*agent.CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  convertToOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := callWithRetry(ctx, p.retry, func() (openai.ChatCompletionResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return openai.ChatCompletionResponse{}, p.wrapError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, agent.NewProviderError(agent.ErrCodeUnknown,
			fmt.Errorf("openai: response contained no choices"))
	}

	choice := resp.Choices[0].Message
	out := &agent.CompletionResponse{
		Content: choice.Content,
		Usage: models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func convertToOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if msg.Role == models.RoleAssistant && len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}

		if msg.Role == models.RoleTool {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result = append(result, oaiMsg)
	}
	return result
}

func convertToOpenAITools(tools []agent.Definition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			// One bad schema must not break the whole catalog.
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		if code == "" {
			code = apiErr.Type
		}
		return agent.NewProviderError(combineStatusAndCode(apiErr.HTTPStatusCode, code), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return agent.NewProviderError(classifyStatus(reqErr.HTTPStatusCode), err)
		}
		return agent.NewProviderError(classifyTransport(err), err)
	}

	return agent.NewProviderError(classifyTransport(err), err)
}
