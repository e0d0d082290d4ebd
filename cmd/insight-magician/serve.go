package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/agent/providers"
	"github.com/thavelick/insight-magician-sub000/internal/appdb"
	"github.com/thavelick/insight-magician-sub000/internal/auth"
	"github.com/thavelick/insight-magician-sub000/internal/config"
	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/ratelimit"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
	"github.com/thavelick/insight-magician-sub000/internal/tools/database"
	"github.com/thavelick/insight-magician-sub000/internal/tools/widget"
	"github.com/thavelick/insight-magician-sub000/internal/uploads"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/internal/web"
)

// buildServeCmd creates the "serve" command that starts the backend
// server. This is the primary command for running in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Insight Magician server",
		Long: `Start the Insight Magician backend server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Open the application database and the uploads directory
3. Initialize the configured LLM provider (OpenAI or Anthropic)
4. Register the assistant's tools
5. Start the HTTP server for chat, queries, uploads, and metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  insight-magician serve

  # Start with custom config
  insight-magician serve --config /etc/insight-magician/production.yaml

  # Start with debug logging
  insight-magician serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// runServe implements the serve command: configuration loading, service
// assembly, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "insight-magician",
		ServiceVersion: version,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		EnableInsecure: cfg.Observability.Insecure,
	})

	logger.Info(ctx, "starting insight magician",
		"version", version,
		"commit", commit,
		"config", configPath,
		"addr", cfg.Server.Addr(),
		"llm_provider", cfg.LLM.Provider,
	)

	store, err := appdb.Open(cfg.AppDatabase.Path)
	if err != nil {
		return fmt.Errorf("failed to open app database: %w", err)
	}
	defer store.Close()

	authService := auth.NewService(auth.Config{
		Enabled:         cfg.Auth.Enabled,
		JWTSecret:       cfg.Auth.JWTSecret,
		TokenExpiry:     cfg.Auth.TokenExpiry,
		MagicLinkExpiry: cfg.Auth.MagicLinkExpiry,
		BaseURL:         cfg.Auth.BaseURL,
		Store:           store,
		Sender:          buildSender(cfg),
	})

	executor := userdb.NewExecutor(logger, metrics, tracer)
	reader := userdb.NewSchemaReader(logger, metrics, tracer)

	manager, err := uploads.NewManager(uploads.Config{
		Dir:       cfg.Uploads.Dir,
		MaxSizeMB: cfg.Uploads.MaxSizeMB,
		Logger:    logger,
	}, reader)
	if err != nil {
		return fmt.Errorf("failed to initialize uploads: %w", err)
	}

	janitor, err := uploads.NewJanitor(uploads.JanitorConfig{
		Dir:       cfg.Uploads.Dir,
		Retention: cfg.Uploads.Retention,
		Schedule:  cfg.Uploads.CleanupSchedule,
		Logger:    logger,
		Tokens:    store,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cleanup: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry, err := agent.NewRegistry(
		database.NewSchemaTool(reader),
		widget.NewListTool(),
		database.NewQueryTool(executor),
		widget.NewCreateTool(executor),
		widget.NewEditTool(executor),
	)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	orchestrator := agent.NewOrchestrator(provider, registry, logger, metrics, tracer,
		&agent.OrchestratorConfig{MaxTokens: cfg.LLM.MaxTokens})

	server := web.NewServer(&web.Config{
		Addr:         cfg.Server.Addr(),
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
		Orchestrator: orchestrator,
		Executor:     executor,
		Schema:       reader,
		Uploads:      manager,
		Auth:         authService,
		RateLimiter:  buildRateLimiter(cfg),
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	janitor.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	logger.Info(ctx, "insight magician started",
		"addr", cfg.Server.Addr(),
		"model", provider.Model(),
		"auth_enabled", authService.Enabled(),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info(ctx, "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	janitor.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}

	logger.Info(shutdownCtx, "insight magician stopped gracefully")
	return nil
}

// loadServeConfig loads the config file. A missing file under the
// default name is not an error; the server starts on built-in defaults
// plus environment variables.
func loadServeConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigName {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildProvider selects and constructs the configured LLM adapter. A
// missing API key fails startup rather than the first chat request.
func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return providers.NewAnthropicProviderWithConfig(providers.AnthropicConfig{
			APIKey:  resolveAPIKey(cfg),
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Retry:   retryPolicy(cfg),
		})
	case "openai":
		return providers.NewOpenAIProviderWithConfig(providers.OpenAIConfig{
			APIKey:  resolveAPIKey(cfg),
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Retry:   retryPolicy(cfg),
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

// retryPolicy translates the retry settings into a backoff policy for
// provider calls.
func retryPolicy(cfg *config.Config) retry.Config {
	retries := cfg.LLM.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.Exponential(retries+1, cfg.LLM.RetryDelay, 8*time.Second)
}

// buildRateLimiter returns the API rate limiter, or nil when limiting
// is off.
func buildRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Server.RateLimit.Enabled {
		return nil
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             cfg.Server.RateLimit.Burst,
	})
}

// resolveAPIKey falls back to the provider's canonical environment
// variable when the config leaves the key empty.
func resolveAPIKey(cfg *config.Config) string {
	if cfg.LLM.APIKey != "" {
		return cfg.LLM.APIKey
	}
	switch cfg.LLM.Provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// buildSender picks the login-link delivery mechanism: SMTP when a host
// is configured, the log otherwise. A nil return lets the auth service
// fall back to its own default.
func buildSender(cfg *config.Config) auth.Sender {
	if cfg.Auth.SMTP.Host == "" {
		return nil
	}
	return auth.NewSMTPSender(auth.SMTPConfig{
		Host:     cfg.Auth.SMTP.Host,
		Port:     cfg.Auth.SMTP.Port,
		Username: cfg.Auth.SMTP.Username,
		Password: cfg.Auth.SMTP.Password,
		From:     cfg.Auth.SMTP.From,
	})
}
