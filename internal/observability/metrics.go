package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus metric set:
//   - LLM request performance and token consumption
//   - tool execution counts and latencies
//   - chat loop depth (iterations per request)
//   - HTTP surface latency
//   - user-database query latency (uploaded SQLite files)
//   - upload throughput and error rates by component
type Metrics struct {
	// LLMRequestDuration measures adapter call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts adapter calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ChatIterations records how many loop iterations each chat request
	// took before producing a final answer.
	ChatIterations prometheus.Histogram

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// UserQueryDuration measures queries against uploaded databases.
	// Labels: source (tool|http|widget_preview)
	UserQueryDuration *prometheus.HistogramVec

	// UserQueryCounter counts queries against uploaded databases.
	// Labels: source, status (success|error)
	UserQueryCounter *prometheus.CounterVec

	// UploadCounter counts database uploads.
	// Labels: status (accepted|rejected)
	UploadCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (chat|adapter|tool|userdb|web), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics registers the metric set with the default registry. Call
// once at startup; the promhttp handler exposes the result.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metric set with a specific registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid duplicate
// registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_magician_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_magician_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ChatIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insight_magician_chat_iterations",
				Help:    "Number of tool-loop iterations per chat request",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_magician_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		UserQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_magician_user_query_duration_seconds",
				Help:    "Duration of queries against uploaded databases in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"source"},
		),

		UserQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_user_queries_total",
				Help: "Total number of queries against uploaded databases",
			},
			[]string{"source", "status"},
		),

		UploadCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_uploads_total",
				Help: "Total number of database uploads by status",
			},
			[]string{"status"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_magician_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordLLMRequest records one adapter call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordChatIterations records the loop depth of a finished chat turn.
func (m *Metrics) RecordChatIterations(iterations int) {
	m.ChatIterations.Observe(float64(iterations))
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordUserQuery records one query against an uploaded database.
func (m *Metrics) RecordUserQuery(source, status string, durationSeconds float64) {
	m.UserQueryCounter.WithLabelValues(source, status).Inc()
	m.UserQueryDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordUpload records one database upload attempt.
func (m *Metrics) RecordUpload(status string) {
	m.UploadCounter.WithLabelValues(status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
