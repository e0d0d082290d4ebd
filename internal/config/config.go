package config

import (
	"fmt"
	"time"
)

// Config is the main configuration structure for the service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Auth          AuthConfig          `yaml:"auth"`
	Uploads       UploadsConfig       `yaml:"uploads"`
	AppDatabase   AppDatabaseConfig   `yaml:"app_database"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles API requests per authenticated user, or
// per client address before login. Off unless enabled.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects and configures the chat-completion provider.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// APIKey is the provider credential. Usually set via environment
	// expansion, e.g. ${OPENAI_API_KEY}.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the provider endpoint (proxies, compatible APIs).
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	// MaxRetries is how many times a failed provider call is retried
	// after the first attempt. Only transient failures are retried.
	// Negative disables retries.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the initial backoff between provider call attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AuthConfig configures magic-link authentication. Disabled means every
// request passes through unauthenticated (development mode).
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	JWTSecret       string        `yaml:"jwt_secret"`
	TokenExpiry     time.Duration `yaml:"token_expiry"`
	MagicLinkExpiry time.Duration `yaml:"magic_link_expiry"`
	// BaseURL is the externally visible origin used when composing
	// login links.
	BaseURL string     `yaml:"base_url"`
	SMTP    SMTPConfig `yaml:"smtp"`
}

// SMTPConfig configures outbound mail for login links. An empty host
// routes links to the log instead (development mode).
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// UploadsConfig configures storage of user database files.
type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	MaxSizeMB int64  `yaml:"max_size_mb"`
	// Retention is how long an uploaded database survives before the
	// janitor removes it.
	Retention time.Duration `yaml:"retention"`
	// CleanupSchedule is a cron expression for the janitor.
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// AppDatabaseConfig locates the application store (users, login
// tokens). Separate from user uploads.
type AppDatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures tracing export.
type ObservabilityConfig struct {
	// OTLPEndpoint is the collector address; empty disables tracing.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads, merges, and validates the configuration file at path.
// ${VAR} environment references are expanded, $include directives
// resolved, and unknown fields rejected.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("observability.sampling_rate must be in [0, 1], got %v", c.Observability.SamplingRate)
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be positive, got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.Model = "claude-sonnet-4-20250514"
		default:
			cfg.LLM.Model = "gpt-4o"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 10
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 720 * time.Hour
	}
	if cfg.Auth.MagicLinkExpiry == 0 {
		cfg.Auth.MagicLinkExpiry = 15 * time.Minute
	}
	if cfg.Auth.BaseURL == "" {
		cfg.Auth.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Auth.SMTP.Port == 0 {
		cfg.Auth.SMTP.Port = 587
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "./uploads"
	}
	if cfg.Uploads.MaxSizeMB == 0 {
		cfg.Uploads.MaxSizeMB = 50
	}
	if cfg.Uploads.Retention == 0 {
		cfg.Uploads.Retention = 7 * 24 * time.Hour
	}
	if cfg.Uploads.CleanupSchedule == "" {
		cfg.Uploads.CleanupSchedule = "@hourly"
	}
	if cfg.AppDatabase.Path == "" {
		cfg.AppDatabase.Path = "./data/app.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}
