// Package widget implements the chat tools that inspect and produce
// dashboard widget configurations. Widget state lives on the client;
// these tools read the per-request snapshot and return new
// configurations for the frontend to persist.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/sqlcheck"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// previewRowCap bounds the eager preview run so a broad query cannot
// balloon the tool output. The config notes when the cap bites.
const previewRowCap = 500

const (
	minDimension     = 1
	maxDimension     = 4
	defaultDimension = 2
)

// CreateTool builds new widget configurations, running the query once
// for an initial preview.
type CreateTool struct {
	executor *userdb.Executor

	// Overridable for deterministic ids in tests.
	now     func() time.Time
	randInt func(n int) int
}

// NewCreateTool returns the create_widget tool.
func NewCreateTool(executor *userdb.Executor) *CreateTool {
	return &CreateTool{
		executor: executor,
		now:      time.Now,
		randInt:  rand.Intn, // #nosec G404 -- id uniqueness does not require cryptographic randomness
	}
}

func (t *CreateTool) Name() string { return "create_widget" }

func (t *CreateTool) Description() string {
	return "Create a new dashboard widget showing query results as a data table or a custom D3 graph. Returns the widget configuration with preview data."
}

func (t *CreateTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {
      "type": "string",
      "description": "Widget title shown on the dashboard"
    },
    "widgetType": {
      "type": "string",
      "enum": ["data-table", "graph"],
      "description": "How the results are rendered"
    },
    "query": {
      "type": "string",
      "description": "SELECT statement feeding the widget. No semicolons, LIMIT, or OFFSET; pagination is applied automatically."
    },
    "width": {
      "type": "integer",
      "description": "Grid width, 1 to 4 (default: 2)"
    },
    "height": {
      "type": "integer",
      "description": "Grid height, 1 to 4 (default: 2)"
    },
    "chartFunction": {
      "type": "string",
      "description": "JavaScript createChart function source. Required for graph widgets."
    }
  },
  "required": ["title", "widgetType", "query"]
}`)
}

func (t *CreateTool) PromptDescription() string {
	return "create a new dashboard widget (data table or custom graph)"
}

func (t *CreateTool) UsageGuidance() string {
	return "use this when the user asks to add a chart, graph, or table to their dashboard; graph widgets need a chartFunction"
}

func (t *CreateTool) ExampleQueries() []string {
	return []string{
		"Create a bar chart of sales by month",
		"Add a table showing the newest signups",
	}
}

// PromptExamples contributes the chart function template to the system
// prompt so the model writes compatible graph code.
func (t *CreateTool) PromptExamples() string {
	return `Chart function template for graph widgets:
function createChart(data, svg, d3, width, height) {
  // data.columns holds column names; data.rows holds arrays of cell values
  // render into the provided svg selection using d3
}`
}

type createInput struct {
	Title         string `json:"title"`
	WidgetType    string `json:"widgetType"`
	Query         string `json:"query"`
	Width         *int   `json:"width"`
	Height        *int   `json:"height"`
	ChartFunction string `json:"chartFunction"`
}

// widgetConfig is the created widget as the frontend persists it.
type widgetConfig struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	WidgetType       models.WidgetType     `json:"widgetType"`
	Query            string                `json:"query"`
	Width            int                   `json:"width"`
	Height           int                   `json:"height"`
	ChartFunction    string                `json:"chartFunction,omitempty"`
	Results          *models.WidgetResults `json:"results,omitempty"`
	PreviewTruncated bool                  `json:"previewTruncated,omitempty"`
}

// Execute validates the configuration, runs the query for a preview,
// and returns the widget ready to persist.
func (t *CreateTool) Execute(ctx context.Context, args map[string]any, req *agent.RequestContext) models.ToolOutput {
	if req == nil || req.DatabasePath == "" {
		return models.Fail(models.ActionSQLError, "No database selected. Upload a database file first.")
	}

	var input createInput
	if err := decodeArgs(args, &input); err != nil {
		return models.FailWrap(models.ActionValidationError, "Invalid tool arguments", err)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Fail(models.ActionValidationError, "Title is required")
	}

	widgetType := models.WidgetType(input.WidgetType)
	if widgetType != models.WidgetDataTable && widgetType != models.WidgetGraph {
		return models.Fail(models.ActionValidationError, "widgetType must be 'data-table' or 'graph'")
	}

	width, errMsg := dimensionValue(input.Width, "Width")
	if errMsg != "" {
		return models.Fail(models.ActionValidationError, errMsg)
	}
	height, errMsg := dimensionValue(input.Height, "Height")
	if errMsg != "" {
		return models.Fail(models.ActionValidationError, errMsg)
	}

	if widgetType == models.WidgetGraph {
		if strings.TrimSpace(input.ChartFunction) == "" {
			return models.Fail(models.ActionValidationError, "chartFunction is required for graph widgets")
		}
		if !chartFunctionLooksValid(input.ChartFunction) {
			return models.Fail(models.ActionValidationError, "chartFunction must define a createChart function")
		}
	}

	if err := sqlcheck.Validate(input.Query, sqlcheck.ModeWidget); err != nil {
		return models.Fail(models.ActionSQLError, err.Error())
	}

	result, truncated, err := t.executor.ExecutePreview(ctx, req.DatabasePath, input.Query, previewRowCap)
	if err != nil {
		return models.FailWrap(models.ActionSQLError, "Widget query failed to execute", err)
	}

	config := widgetConfig{
		ID:               t.newWidgetID(),
		Title:            title,
		WidgetType:       widgetType,
		Query:            input.Query,
		Width:            width,
		Height:           height,
		Results:          &models.WidgetResults{Columns: result.Columns, Rows: result.Rows},
		PreviewTruncated: truncated,
	}
	if widgetType == models.WidgetGraph {
		config.ChartFunction = input.ChartFunction
	}

	message := fmt.Sprintf("Created %s widget '%s' (%dx%d) with %d preview rows.",
		widgetType, title, width, height, len(result.Rows))
	if truncated {
		message += fmt.Sprintf(" Preview capped at %d rows.", previewRowCap)
	}

	return models.OK(models.ActionWidgetCreated, struct {
		WidgetConfig widgetConfig `json:"widgetConfig"`
		Message      string       `json:"message"`
	}{config, message})
}

// newWidgetID builds a unique id from the millisecond timestamp plus a
// random suffix to separate widgets created within the same tick.
func (t *CreateTool) newWidgetID() string {
	return fmt.Sprintf("widget_%d_%d", t.now().UnixMilli(), t.randInt(1000))
}

// dimensionValue applies the default and range check for width/height.
// An empty message means the dimension is acceptable.
func dimensionValue(v *int, name string) (int, string) {
	if v == nil {
		return defaultDimension, ""
	}
	if *v < minDimension || *v > maxDimension {
		return 0, fmt.Sprintf("%s must be between %d and %d", name, minDimension, maxDimension)
	}
	return *v, ""
}

// chartFunctionLooksValid lexically checks the chart source: it must
// define a function and reference createChart. Real validation happens
// in the browser when the widget renders.
func chartFunctionLooksValid(src string) bool {
	return strings.Contains(src, "function") && strings.Contains(src, "createChart")
}

// decodeArgs maps loosely typed tool arguments onto a typed input
// struct. Pointer fields distinguish absent parameters from zero
// values, which the edit overlay depends on.
func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
