package testharness_test

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/testharness"
	"github.com/thavelick/insight-magician-sub000/internal/tools/database"
	"github.com/thavelick/insight-magician-sub000/internal/tools/widget"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
)

// promptDate pins the prompt's date line so snapshots stay stable.
var promptDate = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// productionRegistry mirrors the tool set and registration order the
// serve command wires up.
func productionRegistry(t *testing.T) *agent.Registry {
	t.Helper()

	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	tracer, _ := observability.NewTracer(observability.TraceConfig{})

	executor := userdb.NewExecutor(logger, metrics, tracer)
	reader := userdb.NewSchemaReader(logger, metrics, tracer)

	reg, err := agent.NewRegistry(
		database.NewSchemaTool(reader),
		widget.NewListTool(),
		database.NewQueryTool(executor),
		widget.NewCreateTool(executor),
		widget.NewEditTool(executor),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

// TestPromptSnapshot_AllTools pins the full production prompt: the
// preamble, the tool list in registration order, usage guidance,
// example requests, and the chart function template.
func TestPromptSnapshot_AllTools(t *testing.T) {
	prompt := agent.BuildSystemPrompt(productionRegistry(t), promptDate)

	g := testharness.NewGoldenAt(t, "testdata/golden/prompts")
	g.Assert(prompt)
}

// TestPromptSnapshot_NoTools pins the degenerate prompt produced by an
// empty registry.
func TestPromptSnapshot_NoTools(t *testing.T) {
	reg, err := agent.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	prompt := agent.BuildSystemPrompt(reg, promptDate)

	g := testharness.NewGoldenAt(t, "testdata/golden/prompts")
	g.Assert(prompt)
}
