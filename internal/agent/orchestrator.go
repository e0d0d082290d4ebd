package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// Loop bounds. Requests that hit MaxWorkflowTime get a 408; requests
// that hit MaxToolIterations get one final tool-less completion so the
// model must answer in prose.
const (
	MaxToolIterations   = 10
	MaxWorkflowTime     = 5 * time.Minute
	StorageMessageLimit = 200
	MaxMessageLength    = 4000
	MaxHistoryLength    = 300
	DefaultMaxTokens    = 2000
)

// ChatRequest is one user turn plus the client-held conversation state.
// The server stores nothing between turns; history and widgets arrive
// with every request.
type ChatRequest struct {
	Message      string
	History      []models.Message
	DatabasePath string
	Widgets      []models.WidgetSummary
}

// ChatResult is the outcome of a completed chat turn.
type ChatResult struct {
	Message              string              `json:"message"`
	Usage                models.Usage        `json:"usage"`
	ToolResults          []models.ToolResult `json:"toolResults"`
	Iterations           int                 `json:"iterations"`
	ReachedMaxIterations bool                `json:"reachedMaxIterations,omitempty"`
}

// OrchestratorConfig bounds the chat loop.
type OrchestratorConfig struct {
	// MaxIterations limits provider calls that may request tools.
	// Default: MaxToolIterations.
	MaxIterations int

	// MaxWallTime limits total turn duration, checked at the top of each
	// iteration. Default: MaxWorkflowTime.
	MaxWallTime time.Duration

	// MaxTokens is the completion budget per provider call.
	// Default: DefaultMaxTokens.
	MaxTokens int

	// Clock supplies the current time. Tests substitute a fake to drive
	// the wall-clock guard deterministically. Default: time.Now.
	Clock func() time.Time
}

// DefaultOrchestratorConfig returns the production loop bounds.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxIterations: MaxToolIterations,
		MaxWallTime:   MaxWorkflowTime,
		MaxTokens:     DefaultMaxTokens,
		Clock:         time.Now,
	}
}

func sanitizeOrchestratorConfig(config *OrchestratorConfig) *OrchestratorConfig {
	if config == nil {
		return DefaultOrchestratorConfig()
	}
	cfg := *config
	defaults := DefaultOrchestratorConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxWallTime <= 0 {
		cfg.MaxWallTime = defaults.MaxWallTime
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	return &cfg
}

// Orchestrator drives the iterative tool-calling loop for one chat
// turn: call the provider, dispatch any requested tools sequentially in
// model order, feed each output back as a tool-role message, repeat.
// Tool failures never abort the loop; only provider failures, the
// wall-clock guard, and context cancellation do.
type Orchestrator struct {
	provider Provider
	registry *Registry
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	config   *OrchestratorConfig
}

// NewOrchestrator creates an orchestrator. If config is nil,
// DefaultOrchestratorConfig is used.
func NewOrchestrator(provider Provider, registry *Registry, log *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer, config *OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		log:      log,
		metrics:  metrics,
		tracer:   tracer,
		config:   sanitizeOrchestratorConfig(config),
	}
}

// Run executes one chat turn to completion. It returns *ValidationError
// for bad input, *TimeoutError when the wall-clock guard trips, and
// *ProviderError when the adapter fails; the HTTP surface maps those to
// 400, 408, and 503.
func (o *Orchestrator) Run(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := validateChatRequest(req); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.TraceChatTurn(ctx)
	defer span.End()

	start := o.config.Clock()

	history := req.History
	if len(history) > StorageMessageLimit {
		history = history[len(history)-StorageMessageLimit:]
	}

	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, models.Message{
		Role:    models.RoleSystem,
		Content: BuildSystemPrompt(o.registry, start),
	})
	messages = append(messages, history...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: req.Message})

	reqCtx := &RequestContext{
		DatabasePath: req.DatabasePath,
		Widgets:      req.Widgets,
	}

	o.log.Info(ctx, "chat turn started",
		"history_len", len(history),
		"widgets", len(req.Widgets),
		"has_database", req.DatabasePath != "")

	usage := models.Usage{}
	toolResults := make([]models.ToolResult, 0)
	definitions := o.registry.Definitions()
	iterations := 0

	for iterations < o.config.MaxIterations {
		if elapsed := o.config.Clock().Sub(start); elapsed > o.config.MaxWallTime {
			o.log.Warn(ctx, "chat turn exceeded wall-clock budget",
				"elapsed", elapsed.String(),
				"iterations", iterations)
			o.metrics.RecordError("chat", "timeout")
			return nil, &TimeoutError{}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterations++

		resp, err := o.complete(ctx, CompletionRequest{
			Messages:  messages,
			Tools:     definitions,
			MaxTokens: o.config.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			o.metrics.RecordChatIterations(iterations)
			o.log.Info(ctx, "chat turn completed",
				"iterations", iterations,
				"tool_calls", len(toolResults),
				"total_tokens", usage.TotalTokens)
			return &ChatResult{
				Message:     resp.Content,
				Usage:       usage,
				ToolResults: toolResults,
				Iterations:  iterations,
			}, nil
		}

		messages = append(messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			out := o.executeToolCall(ctx, call, reqCtx)
			messages = append(messages, models.Message{
				Role:       models.RoleTool,
				Content:    encodeToolOutput(out),
				ToolCallID: call.ID,
			})
			toolResults = append(toolResults, models.ToolResult{
				ToolCallID: call.ID,
				Result:     out,
			})
		}
	}

	// Iteration cap reached: one last call without tools forces a prose
	// answer from whatever the tools produced so far.
	resp, err := o.complete(ctx, CompletionRequest{
		Messages:  messages,
		MaxTokens: o.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage)

	o.metrics.RecordChatIterations(iterations)
	o.log.Info(ctx, "chat turn hit iteration cap",
		"iterations", iterations,
		"tool_calls", len(toolResults),
		"total_tokens", usage.TotalTokens)
	return &ChatResult{
		Message:              resp.Content,
		Usage:                usage,
		ToolResults:          toolResults,
		Iterations:           iterations,
		ReachedMaxIterations: true,
	}, nil
}

// complete wraps one provider call with tracing and metrics.
func (o *Orchestrator) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	llmCtx, span := o.tracer.TraceLLMRequest(ctx, o.provider.Name(), o.provider.Model())
	defer span.End()

	start := o.config.Clock()
	resp, err := o.provider.CreateChatCompletion(llmCtx, req)
	elapsed := o.config.Clock().Sub(start).Seconds()

	if err != nil {
		o.tracer.RecordError(span, err)
		o.metrics.RecordLLMRequest(o.provider.Name(), o.provider.Model(), "error", elapsed, 0, 0)
		o.metrics.RecordError("adapter", providerErrorType(err))
		o.log.Error(ctx, "LLM request failed",
			"provider", o.provider.Name(),
			"model", o.provider.Model(),
			"error", err)
		return nil, err
	}

	o.metrics.RecordLLMRequest(o.provider.Name(), o.provider.Model(), "success", elapsed,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// executeToolCall resolves and runs one tool call. Every failure mode
// becomes a ToolOutput fed back to the model: malformed argument JSON,
// unknown tool name, schema-invalid parameters, and execution errors
// including panics.
func (o *Orchestrator) executeToolCall(ctx context.Context, call models.ToolCall, reqCtx *RequestContext) models.ToolOutput {
	toolCtx, span := o.tracer.TraceToolExecution(ctx, call.Name)
	defer span.End()
	start := o.config.Clock()

	fail := func(out models.ToolOutput) models.ToolOutput {
		o.metrics.RecordToolExecution(call.Name, "error", o.config.Clock().Sub(start).Seconds())
		o.tracer.RecordError(span, errors.New(out.Error))
		return out
	}

	args, err := parseToolArguments(call.Arguments)
	if err != nil {
		o.log.Warn(ctx, "tool arguments failed to parse", "tool", call.Name, "error", err)
		return fail(models.FailWrap(models.ActionParseError, "Failed to parse tool arguments", err))
	}

	tool, ok := o.registry.Get(call.Name)
	if !ok {
		o.log.Warn(ctx, "model requested unknown tool", "tool", call.Name)
		return fail(models.Fail(models.ActionToolError, fmt.Sprintf("Tool '%s' not found", call.Name)))
	}

	if err := o.registry.ValidateParams(call.Name, args); err != nil {
		o.log.Warn(ctx, "tool parameters failed validation", "tool", call.Name, "error", err)
		return fail(models.Fail(models.ActionValidationError, err.Error()))
	}

	out := o.runTool(toolCtx, tool, args, reqCtx)

	status := "success"
	if !out.Success {
		status = "error"
		o.tracer.RecordError(span, errors.New(out.Error))
	}
	o.metrics.RecordToolExecution(call.Name, status, o.config.Clock().Sub(start).Seconds())
	return out
}

// runTool isolates tool panics so a buggy tool degrades into an
// execution_error output instead of killing the request.
func (o *Orchestrator) runTool(ctx context.Context, tool Tool, args map[string]any, reqCtx *RequestContext) (out models.ToolOutput) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(ctx, "tool panicked",
				"tool", tool.Name(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()))
			out = models.FailWrap(models.ActionExecutionError,
				fmt.Sprintf("Tool '%s' failed unexpectedly", tool.Name()),
				fmt.Errorf("panic: %v", r))
		}
	}()
	return tool.Execute(ctx, args, reqCtx)
}

func validateChatRequest(req *ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Message: "Message is required"}
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return &ValidationError{Message: fmt.Sprintf("Message too long (maximum %d characters)", MaxMessageLength)}
	}
	if len(req.History) > MaxHistoryLength {
		return &ValidationError{Message: fmt.Sprintf("Chat history too long (maximum %d messages)", MaxHistoryLength)}
	}
	for _, m := range req.History {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			return &ValidationError{Message: "Invalid chat history: role must be 'user' or 'assistant'"}
		}
		if strings.TrimSpace(m.Content) == "" {
			return &ValidationError{Message: "Invalid chat history: content must be a non-empty string"}
		}
	}
	return nil
}

// parseToolArguments decodes the raw argument JSON from a tool call.
// Empty and whitespace-only strings mean no arguments.
func parseToolArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func encodeToolOutput(out models.ToolOutput) string {
	payload, err := json.Marshal(out)
	if err != nil {
		return `{"success":false,"action":"execution_error","error":"failed to encode tool output"}`
	}
	return string(payload)
}

func providerErrorType(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return string(perr.Code)
	}
	return "unknown"
}
