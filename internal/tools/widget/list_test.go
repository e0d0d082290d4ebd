package widget

import (
	"context"
	"testing"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

func TestListTool_Empty(t *testing.T) {
	tool := NewListTool()

	out := tool.Execute(context.Background(), nil, &agent.RequestContext{})
	if !out.Success {
		t.Fatalf("Execute failed: %s", out.Error)
	}
	if out.Action != models.ActionWidgetsListed {
		t.Errorf("action = %s, want widgets_listed", out.Action)
	}

	data := dataMap(t, out)
	if data["count"] != float64(0) {
		t.Errorf("count = %v, want 0", data["count"])
	}
	widgets, ok := data["widgets"].([]any)
	if !ok || len(widgets) != 0 {
		t.Errorf("widgets = %v, want empty array", data["widgets"])
	}
	if data["summary"] != "No widgets on the dashboard yet." {
		t.Errorf("summary = %q", data["summary"])
	}
}

func TestListTool_ReportsWidgets(t *testing.T) {
	tool := NewListTool()
	req := &agent.RequestContext{
		Widgets: []models.WidgetSummary{
			{
				ID:            1,
				Title:         "Sales",
				Type:          models.WidgetGraph,
				Query:         "SELECT month, total FROM sales",
				Dimensions:    models.Dimensions{Width: 3, Height: 2},
				HasResults:    true,
				ChartFunction: validChart,
			},
			{
				ID:         2,
				Title:      "Users",
				Type:       models.WidgetDataTable,
				Query:      "SELECT id FROM users",
				Dimensions: models.Dimensions{Width: 2, Height: 1},
				Results:    &models.WidgetResults{Columns: []string{"id"}, Rows: [][]any{}},
			},
			{
				ID:    3,
				Title: "Placeholder",
				Type:  models.WidgetDataTable,
			},
		},
	}

	out := tool.Execute(context.Background(), nil, req)
	if !out.Success {
		t.Fatalf("Execute failed: %s", out.Error)
	}

	data := dataMap(t, out)
	widgets, _ := data["widgets"].([]any)
	if len(widgets) != 3 {
		t.Fatalf("widgets = %d, want 3", len(widgets))
	}

	first, _ := widgets[0].(map[string]any)
	if first["id"] != float64(1) || first["status"] != "showing data" {
		t.Errorf("first widget = %v", first)
	}
	if first["hasChartFunction"] != true {
		t.Error("graph widget should report hasChartFunction")
	}

	second, _ := widgets[1].(map[string]any)
	if second["status"] != "no results (query returned empty)" {
		t.Errorf("second status = %v", second["status"])
	}

	third, _ := widgets[2].(map[string]any)
	if third["status"] != "empty (no query set)" {
		t.Errorf("third status = %v", third["status"])
	}

	want := "3 widgets (2 data-table, 1 graph): 1 showing data, 1 no results (query returned empty), 1 empty (no query set)"
	if data["summary"] != want {
		t.Errorf("summary = %q, want %q", data["summary"], want)
	}
}

func TestListTool_SingularSummary(t *testing.T) {
	tool := NewListTool()
	req := &agent.RequestContext{
		Widgets: []models.WidgetSummary{
			{ID: 1, Title: "Pending", Type: models.WidgetDataTable, Query: "SELECT 1"},
		},
	}

	out := tool.Execute(context.Background(), nil, req)
	data := dataMap(t, out)
	want := "1 widget (1 data-table): 1 configured but not run"
	if data["summary"] != want {
		t.Errorf("summary = %q, want %q", data["summary"], want)
	}
}
