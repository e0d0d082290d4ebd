// Package agent implements the LLM tool-orchestration engine: the tool
// contract and registry, the system-prompt builder, the provider
// boundary, and the iterative chat loop that drives them.
package agent

import (
	"context"
	"encoding/json"

	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// Tool is the capability contract every chat tool implements. Execute
// never panics past its boundary and never returns a Go error; failures
// are expressed as ToolOutput values so the model can read and recover
// from them.
type Tool interface {
	// Name is the stable identifier used at dispatch.
	Name() string

	// Description is the short text sent to the LLM in the tool catalog.
	Description() string

	// ParameterSchema is the JSON Schema for Execute's args.
	ParameterSchema() json.RawMessage

	// PromptDescription is the one-line summary used by the system
	// prompt builder.
	PromptDescription() string

	// UsageGuidance tells the model when to reach for this tool.
	UsageGuidance() string

	// ExampleQueries are user requests this tool should handle, used in
	// the system prompt's example block.
	ExampleQueries() []string

	// Execute runs the tool against the per-request context.
	Execute(ctx context.Context, args map[string]any, req *RequestContext) models.ToolOutput
}

// PromptExampler is an optional Tool extension contributing extra
// material to the system prompt, such as chart-function samples.
type PromptExampler interface {
	PromptExamples() string
}

// Definition is the provider-facing view of a tool.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// RequestContext is the read-only bundle shared by every tool
// invocation within one chat request. Tools never mutate it; widget
// tools return new configurations instead.
type RequestContext struct {
	DatabasePath string
	Widgets      []models.WidgetSummary
}

// Widget finds a widget snapshot by id.
func (c *RequestContext) Widget(id int) (models.WidgetSummary, bool) {
	for _, w := range c.Widgets {
		if w.ID == id {
			return w, true
		}
	}
	return models.WidgetSummary{}, false
}
