package widget

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

var (
	_ agent.Tool           = (*ListTool)(nil)
	_ agent.Tool           = (*CreateTool)(nil)
	_ agent.Tool           = (*EditTool)(nil)
	_ agent.PromptExampler = (*CreateTool)(nil)
)

func testDeps() (*observability.Logger, *observability.Metrics, *observability.Tracer) {
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	tracer, _ := observability.NewTracer(observability.TraceConfig{})
	return logger, metrics, tracer
}

func testExecutor() *userdb.Executor {
	return userdb.NewExecutor(testDeps())
}

// createFixture writes a SQLite file with a users table holding n rows.
func createFixture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 1; i <= n; i++ {
		if _, err := db.Exec(`INSERT INTO users (id, name) VALUES (?, ?)`, i, fmt.Sprintf("user%d", i)); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	return path
}

// dataMap round-trips the output payload through JSON, matching how the
// orchestrator delivers it to the model.
func dataMap(t *testing.T, out models.ToolOutput) map[string]any {
	t.Helper()
	raw, err := json.Marshal(out.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	return m
}

const validChart = "function createChart(data, svg, d3, width, height) { return svg; }"

var widgetIDPattern = regexp.MustCompile(`^widget_\d+_\d+$`)

func TestCreateTool_CreatesDataTable(t *testing.T) {
	path := createFixture(t, 5)
	tool := NewCreateTool(testExecutor())

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "User list",
		"widgetType": "data-table",
		"query":      "SELECT id, name FROM users ORDER BY id",
	}, &agent.RequestContext{DatabasePath: path})
	if !out.Success {
		t.Fatalf("Execute failed: %s (%s)", out.Error, out.OriginalError)
	}
	if out.Action != models.ActionWidgetCreated {
		t.Errorf("action = %s, want widget_created", out.Action)
	}

	data := dataMap(t, out)
	config, _ := data["widgetConfig"].(map[string]any)
	if config == nil {
		t.Fatalf("missing widgetConfig in %v", data)
	}

	id, _ := config["id"].(string)
	if !widgetIDPattern.MatchString(id) {
		t.Errorf("id = %q, want widget_<ms>_<n>", id)
	}
	if config["title"] != "User list" || config["widgetType"] != "data-table" {
		t.Errorf("config = %v", config)
	}
	if config["width"] != float64(2) || config["height"] != float64(2) {
		t.Errorf("dimensions = %vx%v, want default 2x2", config["width"], config["height"])
	}

	results, _ := config["results"].(map[string]any)
	if results == nil {
		t.Fatal("results missing from created widget")
	}
	rows, _ := results["rows"].([]any)
	if len(rows) != 5 {
		t.Errorf("preview rows = %d, want 5", len(rows))
	}
	if _, present := config["previewTruncated"]; present {
		t.Error("previewTruncated should be omitted when the cap is not hit")
	}

	msg, _ := data["message"].(string)
	if !strings.Contains(msg, "Created data-table widget 'User list'") {
		t.Errorf("message = %q", msg)
	}
}

func TestCreateTool_UniqueIDs(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())

	// Freeze the clock so uniqueness rests on the random suffix.
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	tool.now = func() time.Time { return fixed }
	seq := 0
	tool.randInt = func(n int) int {
		seq++
		return seq % n
	}

	args := map[string]any{
		"title":      "Widget",
		"widgetType": "data-table",
		"query":      "SELECT id FROM users",
	}
	req := &agent.RequestContext{DatabasePath: path}

	first := dataMap(t, tool.Execute(context.Background(), args, req))
	second := dataMap(t, tool.Execute(context.Background(), args, req))

	id1 := first["widgetConfig"].(map[string]any)["id"]
	id2 := second["widgetConfig"].(map[string]any)["id"]
	if id1 == id2 {
		t.Errorf("both widgets got id %v", id1)
	}
}

func TestCreateTool_GraphRequiresChartFunction(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())
	req := &agent.RequestContext{DatabasePath: path}

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Chart",
		"widgetType": "graph",
		"query":      "SELECT id FROM users",
	}, req)
	if out.Success || out.Error != "chartFunction is required for graph widgets" {
		t.Errorf("missing chartFunction: success=%v error=%q", out.Success, out.Error)
	}

	out = tool.Execute(context.Background(), map[string]any{
		"title":         "Chart",
		"widgetType":    "graph",
		"query":         "SELECT id FROM users",
		"chartFunction": "var x = 1",
	}, req)
	if out.Success || out.Error != "chartFunction must define a createChart function" {
		t.Errorf("bad chartFunction: success=%v error=%q", out.Success, out.Error)
	}

	out = tool.Execute(context.Background(), map[string]any{
		"title":         "Chart",
		"widgetType":    "graph",
		"query":         "SELECT id FROM users",
		"chartFunction": validChart,
	}, req)
	if !out.Success {
		t.Fatalf("valid graph rejected: %s", out.Error)
	}
	config := dataMap(t, out)["widgetConfig"].(map[string]any)
	if config["chartFunction"] != validChart {
		t.Error("chartFunction missing from created graph config")
	}
}

func TestCreateTool_DimensionBounds(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())
	req := &agent.RequestContext{DatabasePath: path}

	tests := []struct {
		name  string
		args  map[string]any
		error string
	}{
		{"width too small", map[string]any{"width": 0}, "Width must be between 1 and 4"},
		{"width too large", map[string]any{"width": 5}, "Width must be between 1 and 4"},
		{"height too large", map[string]any{"height": 9}, "Height must be between 1 and 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{
				"title":      "Widget",
				"widgetType": "data-table",
				"query":      "SELECT id FROM users",
			}
			for k, v := range tt.args {
				args[k] = v
			}
			out := tool.Execute(context.Background(), args, req)
			if out.Success {
				t.Fatal("expected rejection")
			}
			if out.Action != models.ActionValidationError || out.Error != tt.error {
				t.Errorf("got action %s error %q", out.Action, out.Error)
			}
		})
	}

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Wide",
		"widgetType": "data-table",
		"query":      "SELECT id FROM users",
		"width":      4,
		"height":     1,
	}, req)
	if !out.Success {
		t.Fatalf("4x1 rejected: %s", out.Error)
	}
	config := dataMap(t, out)["widgetConfig"].(map[string]any)
	if config["width"] != float64(4) || config["height"] != float64(1) {
		t.Errorf("dimensions = %vx%v, want 4x1", config["width"], config["height"])
	}
}

func TestCreateTool_RejectsLimitQueries(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Widget",
		"widgetType": "data-table",
		"query":      "SELECT id FROM users LIMIT 5",
	}, &agent.RequestContext{DatabasePath: path})
	if out.Success {
		t.Fatal("expected rejection of LIMIT in widget query")
	}
	if out.Action != models.ActionSQLError {
		t.Errorf("action = %s, want sql_error", out.Action)
	}
	if !strings.Contains(out.Error, "LIMIT clauses are not allowed in widget queries") {
		t.Errorf("error = %q", out.Error)
	}
}

func TestCreateTool_PreviewCap(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Big",
		"widgetType": "data-table",
		"query":      "WITH RECURSIVE cnt(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM cnt WHERE x < 600) SELECT x FROM cnt",
	}, &agent.RequestContext{DatabasePath: path})
	if !out.Success {
		t.Fatalf("Execute failed: %s (%s)", out.Error, out.OriginalError)
	}

	data := dataMap(t, out)
	config := data["widgetConfig"].(map[string]any)
	if config["previewTruncated"] != true {
		t.Error("previewTruncated = false, want true past the cap")
	}
	rows := config["results"].(map[string]any)["rows"].([]any)
	if len(rows) != 500 {
		t.Errorf("rows = %d, want cap of 500", len(rows))
	}
	msg, _ := data["message"].(string)
	if !strings.Contains(msg, "Preview capped at 500 rows") {
		t.Errorf("message = %q", msg)
	}
}

func TestCreateTool_InputValidation(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())
	req := &agent.RequestContext{DatabasePath: path}

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "  ",
		"widgetType": "data-table",
		"query":      "SELECT id FROM users",
	}, req)
	if out.Success || out.Error != "Title is required" {
		t.Errorf("blank title: success=%v error=%q", out.Success, out.Error)
	}

	out = tool.Execute(context.Background(), map[string]any{
		"title":      "Widget",
		"widgetType": "pie",
		"query":      "SELECT id FROM users",
	}, req)
	if out.Success || out.Error != "widgetType must be 'data-table' or 'graph'" {
		t.Errorf("bad type: success=%v error=%q", out.Success, out.Error)
	}
}

func TestCreateTool_NoDatabase(t *testing.T) {
	tool := NewCreateTool(testExecutor())

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Widget",
		"widgetType": "data-table",
		"query":      "SELECT 1",
	}, &agent.RequestContext{})
	if out.Success {
		t.Fatal("expected failure without a database path")
	}
	if out.Action != models.ActionSQLError || out.Error != "No database selected. Upload a database file first." {
		t.Errorf("got action %s error %q", out.Action, out.Error)
	}
}

func TestCreateTool_QueryFailure(t *testing.T) {
	path := createFixture(t, 1)
	tool := NewCreateTool(testExecutor())

	out := tool.Execute(context.Background(), map[string]any{
		"title":      "Widget",
		"widgetType": "data-table",
		"query":      "SELECT * FROM nope",
	}, &agent.RequestContext{DatabasePath: path})
	if out.Success {
		t.Fatal("expected failure for missing table")
	}
	if out.Action != models.ActionSQLError || out.Error != "Widget query failed to execute" {
		t.Errorf("got action %s error %q", out.Action, out.Error)
	}
	if !strings.Contains(out.OriginalError, "no such table") {
		t.Errorf("originalError = %q", out.OriginalError)
	}
}
