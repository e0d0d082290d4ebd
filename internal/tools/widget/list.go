package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// ListTool reports the dashboard widgets from the request snapshot.
type ListTool struct{}

// NewListTool returns the list_widgets tool.
func NewListTool() *ListTool {
	return &ListTool{}
}

func (t *ListTool) Name() string { return "list_widgets" }

func (t *ListTool) Description() string {
	return "List the widgets currently on the user's dashboard with their queries and state."
}

func (t *ListTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListTool) PromptDescription() string {
	return "list the dashboard widgets and their current state"
}

func (t *ListTool) UsageGuidance() string {
	return "use this when the user refers to existing widgets, or to find a widgetId before editing one"
}

func (t *ListTool) ExampleQueries() []string {
	return []string{
		"What widgets do I have?",
		"Which of my widgets are empty?",
	}
}

// widgetRecord is one widget as reported to the model.
type widgetRecord struct {
	ID               int               `json:"id"`
	Title            string            `json:"title"`
	Type             models.WidgetType `json:"type"`
	Query            string            `json:"query,omitempty"`
	Dimensions       models.Dimensions `json:"dimensions"`
	Status           string            `json:"status"`
	HasChartFunction bool              `json:"hasChartFunction"`
}

// Execute normalizes the widget snapshot into records plus a one-line
// summary.
func (t *ListTool) Execute(ctx context.Context, args map[string]any, req *agent.RequestContext) models.ToolOutput {
	var widgets []models.WidgetSummary
	if req != nil {
		widgets = req.Widgets
	}

	records := make([]widgetRecord, 0, len(widgets))
	for _, w := range widgets {
		records = append(records, widgetRecord{
			ID:               w.ID,
			Title:            w.Title,
			Type:             w.Type,
			Query:            w.Query,
			Dimensions:       w.Dimensions,
			Status:           w.Status(),
			HasChartFunction: w.ChartFunction != "",
		})
	}

	return models.OK(models.ActionWidgetsListed, struct {
		Widgets []widgetRecord `json:"widgets"`
		Count   int            `json:"count"`
		Summary string         `json:"summary"`
	}{records, len(records), summarize(widgets)})
}

// statusOrder fixes the phrasing order of the summary; counts of zero
// are skipped.
var statusOrder = []string{
	"showing data",
	"configured but not run",
	"no results (query returned empty)",
	"empty (no query set)",
}

func summarize(widgets []models.WidgetSummary) string {
	if len(widgets) == 0 {
		return "No widgets on the dashboard yet."
	}

	var tables, graphs int
	statusCounts := make(map[string]int)
	for _, w := range widgets {
		if w.Type == models.WidgetGraph {
			graphs++
		} else {
			tables++
		}
		statusCounts[w.Status()]++
	}

	types := make([]string, 0, 2)
	if tables > 0 {
		types = append(types, fmt.Sprintf("%d data-table", tables))
	}
	if graphs > 0 {
		types = append(types, fmt.Sprintf("%d graph", graphs))
	}

	states := make([]string, 0, len(statusOrder))
	for _, status := range statusOrder {
		if n := statusCounts[status]; n > 0 {
			states = append(states, fmt.Sprintf("%d %s", n, status))
		}
	}

	plural := ""
	if len(widgets) != 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d widget%s (%s): %s",
		len(widgets), plural, strings.Join(types, ", "), strings.Join(states, ", "))
}
