package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

func TestNewOpenAIProvider(t *testing.T) {
	if _, err := NewOpenAIProvider("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}

	p, err := NewOpenAIProvider("test-key", "")
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Model() != defaultOpenAIModel {
		t.Errorf("Model() = %q, want default %q", p.Model(), defaultOpenAIModel)
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "You are helpful."},
		{Role: models.RoleUser, Content: "Run the query"},
		{
			Role:    models.RoleAssistant,
			Content: "Running it now.",
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "run_query", Arguments: `{"query":"SELECT 1"}`},
			},
		},
		{Role: models.RoleTool, Content: `{"success":true}`, ToolCallID: "call-1"},
	}

	result := convertToOpenAIMessages(messages)
	if len(result) != 4 {
		t.Fatalf("converted %d messages, want 4", len(result))
	}

	if result[0].Role != openai.ChatMessageRoleSystem || result[0].Content != "You are helpful." {
		t.Errorf("system message = %+v", result[0])
	}
	if result[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("user role = %q", result[1].Role)
	}

	assistant := result[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %d, want 1", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[0].ID != "call-1" || assistant.ToolCalls[0].Function.Name != "run_query" {
		t.Errorf("tool call = %+v", assistant.ToolCalls[0])
	}
	if assistant.ToolCalls[0].Function.Arguments != `{"query":"SELECT 1"}` {
		t.Errorf("arguments = %q", assistant.ToolCalls[0].Function.Arguments)
	}

	toolMsg := result[3]
	if toolMsg.Role != openai.ChatMessageRoleTool || toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool message = %+v, want tool role keyed by call-1", toolMsg)
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	tools := []agent.Definition{
		{
			Name:        "get_schema_info",
			Description: "Read database structure",
			Schema:      json.RawMessage(`{"type":"object","properties":{"tableName":{"type":"string"}}}`),
		},
		{
			Name:        "broken",
			Description: "has a bad schema",
			Schema:      json.RawMessage(`{"type":`),
		},
	}

	result := convertToOpenAITools(tools)
	if len(result) != 2 {
		t.Fatalf("converted %d tools, want 2", len(result))
	}

	first := result[0]
	if first.Type != openai.ToolTypeFunction {
		t.Errorf("Type = %q", first.Type)
	}
	if first.Function.Name != "get_schema_info" || first.Function.Description != "Read database structure" {
		t.Errorf("function = %+v", first.Function)
	}
	params, ok := first.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("Parameters type = %T, want map", first.Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("schema type = %v", params["type"])
	}

	// A bad schema degrades to an empty object schema instead of
	// poisoning the whole catalog.
	broken, ok := result[1].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("broken Parameters type = %T", result[1].Function.Parameters)
	}
	if broken["type"] != "object" {
		t.Errorf("fallback schema = %v", broken)
	}
}

func TestOpenAIWrapError(t *testing.T) {
	p, err := NewOpenAIProvider("test-key", "gpt-4o")
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want agent.ErrorCode
	}{
		{
			name: "quota exhausted behind 429",
			err:  &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"},
			want: agent.ErrCodeQuotaExceeded,
		},
		{
			name: "plain rate limit",
			err:  &openai.APIError{HTTPStatusCode: 429},
			want: agent.ErrCodeRateLimited,
		},
		{
			name: "bad key",
			err:  &openai.APIError{HTTPStatusCode: 401, Type: "invalid_request_error", Code: "invalid_api_key"},
			want: agent.ErrCodeAuth,
		},
		{
			name: "server side",
			err:  &openai.APIError{HTTPStatusCode: 500},
			want: agent.ErrCodeServer,
		},
		{
			name: "request error with status",
			err:  &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")},
			want: agent.ErrCodeServer,
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: agent.ErrCodeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := p.wrapError(tt.err)
			var perr *agent.ProviderError
			if !errors.As(wrapped, &perr) {
				t.Fatalf("wrapError() = %T, want *agent.ProviderError", wrapped)
			}
			if perr.Code != tt.want {
				t.Errorf("Code = %q, want %q", perr.Code, tt.want)
			}
			if perr.Message == "" {
				t.Error("user-facing message must not be empty")
			}
		})
	}
}

func TestOpenAICompletion_RetriesTransientFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		if hits <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProviderWithConfig(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o",
		BaseURL: srv.URL + "/v1",
		Retry:   retry.Linear(3, time.Millisecond),
	})
	if err != nil {
		t.Fatalf("NewOpenAIProviderWithConfig() error = %v", err)
	}

	resp, err := p.CreateChatCompletion(context.Background(), agent.CompletionRequest{
		Messages:  []models.Message{{Role: models.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("Content = %q, want %q", resp.Content, "done")
	}
	if hits != 3 {
		t.Errorf("server hits = %d, want 3 (two failures then success)", hits)
	}
}

func TestOpenAICompletion_DoesNotRetryAuthFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProviderWithConfig(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o",
		BaseURL: srv.URL + "/v1",
		Retry:   retry.Linear(3, time.Millisecond),
	})
	if err != nil {
		t.Fatalf("NewOpenAIProviderWithConfig() error = %v", err)
	}

	_, err = p.CreateChatCompletion(context.Background(), agent.CompletionRequest{
		Messages:  []models.Message{{Role: models.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})

	var provErr *agent.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %T, want *agent.ProviderError", err)
	}
	if provErr.Code != agent.ErrCodeAuth {
		t.Errorf("Code = %q, want %q", provErr.Code, agent.ErrCodeAuth)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1 (auth failures must not be retried)", hits)
	}
}
