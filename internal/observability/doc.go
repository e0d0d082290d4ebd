// Package observability provides monitoring for the chat pipeline
// through metrics, structured logging, and distributed tracing.
//
// The three pillars:
//
//  1. Metrics - Prometheus counters and histograms for LLM requests,
//     tool executions, chat loop depth, HTTP latency, and queries
//     against uploaded databases.
//  2. Logging - slog-based structured logs with request/user
//     correlation and redaction of API keys, tokens, and JWTs.
//  3. Tracing - OpenTelemetry spans exported over OTLP gRPC, disabled
//     when no collector endpoint is configured.
//
// Typical wiring:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info"})
//	metrics := observability.NewMetrics()
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "insight-magician",
//	    Endpoint:    cfg.Observability.OTLPEndpoint,
//	})
//	defer shutdown(context.Background())
package observability
