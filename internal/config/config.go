// Package config provides configuration loading for weaver.
//
// Configuration is loaded from a YAML file and environment variables with
// sensible defaults. Precedence (highest to lowest): environment variables,
// YAML config file, hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete weaver configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	ToolClient  ToolClientConfig  `koanf:"tool_client"`
	Inference   InferenceConfig   `koanf:"inference"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Executor    ExecutorConfig    `koanf:"executor"`
	Session     SessionConfig     `koanf:"session"`
	Server      ServerConfig      `koanf:"server"`
	Providers   []ProviderConfig  `koanf:"providers"`
	Routing     map[string]string `koanf:"routing"`
}

// ProviderConfig describes one external tool server reachable over MCP.
type ProviderConfig struct {
	Name       string   `koanf:"name"`
	Endpoint   string   `koanf:"endpoint"`
	Operations []string `koanf:"operations"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	ShutdownWait   Duration `koanf:"shutdown_wait"`
}

// ToolClientConfig holds retry and circuit-breaker policy for tool calls.
type ToolClientConfig struct {
	// MaxAttempts caps retries per invocation, including the first attempt.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the base delay before the first retry.
	InitialBackoff Duration `koanf:"initial_backoff"`

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff Duration `koanf:"max_backoff"`

	// CallTimeout is the default per-call deadline when the caller
	// supplies none.
	CallTimeout Duration `koanf:"call_timeout"`

	// DegradeThreshold is the number of consecutive failures after which
	// a provider is marked degraded.
	DegradeThreshold int `koanf:"degrade_threshold"`

	// UnreachableGrace is how long a degraded provider may go without a
	// success before the breaker opens and calls short-circuit.
	UnreachableGrace Duration `koanf:"unreachable_grace"`

	// ProbeInterval is the minimum spacing between probe calls allowed
	// through an open breaker.
	ProbeInterval Duration `koanf:"probe_interval"`
}

// InferenceConfig holds the inference capability configuration.
type InferenceConfig struct {
	Provider     string   `koanf:"provider"` // anthropic or openai
	Model        string   `koanf:"model"`
	APIKey       Secret   `koanf:"api_key"`
	BaseURL      string   `koanf:"base_url"`
	Timeout      Duration `koanf:"timeout"`
	RatePerSec   float64  `koanf:"rate_per_sec"`
	RateBurst    int      `koanf:"rate_burst"`
	MaxTokens    int      `koanf:"max_tokens"`
	Temperature  float64  `koanf:"temperature"`
}

// CoordinatorConfig bounds analysis concurrency.
type CoordinatorConfig struct {
	// MaxConcurrentResources bounds in-flight analysis pipelines.
	MaxConcurrentResources int `koanf:"max_concurrent_resources"`

	// StageTimeout bounds a single analysis stage.
	StageTimeout Duration `koanf:"stage_timeout"`
}

// ExecutorConfig holds plan execution configuration.
type ExecutorConfig struct {
	// StepTimeout bounds a single plan step, including retries.
	StepTimeout Duration `koanf:"step_timeout"`

	// LockWait is how long a queued execution waits for the project lock
	// before failing with lock contention.
	LockWait Duration `koanf:"lock_wait"`
}

// SessionConfig holds orchestration session configuration.
type SessionConfig struct {
	// AutoConfirm accepts approved plans without waiting for a human
	// decision. Plans needing review still wait.
	AutoConfirm bool `koanf:"auto_confirm"`

	// ConfirmWait bounds how long an analyzed resource waits for a
	// confirmation decision. Zero means wait until cancelled.
	ConfirmWait Duration `koanf:"confirm_wait"`

	// SourceBuffer sizes the discovery stream buffer.
	SourceBuffer int `koanf:"source_buffer"`
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Addr            string   `koanf:"addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns the hardcoded defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			ServiceName:    "weaver",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			SamplingRate:   1.0,
			ShutdownWait:   Duration(5 * time.Second),
		},
		ToolClient: ToolClientConfig{
			MaxAttempts:      4,
			InitialBackoff:   Duration(250 * time.Millisecond),
			MaxBackoff:       Duration(10 * time.Second),
			CallTimeout:      Duration(30 * time.Second),
			DegradeThreshold: 3,
			UnreachableGrace: Duration(30 * time.Second),
			ProbeInterval:    Duration(10 * time.Second),
		},
		Inference: InferenceConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5-20250929",
			Timeout:     Duration(60 * time.Second),
			RatePerSec:  2,
			RateBurst:   4,
			MaxTokens:   4096,
			Temperature: 0.3,
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrentResources: 4,
			StageTimeout:           Duration(2 * time.Minute),
		},
		Executor: ExecutorConfig{
			StepTimeout: Duration(5 * time.Minute),
			LockWait:    Duration(1 * time.Minute),
		},
		Session: SessionConfig{
			AutoConfirm:  false,
			ConfirmWait:  Duration(0),
			SourceBuffer: 64,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":9190",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		// Only the built-in git provider is routed by default; other step
		// kinds are bound to configured providers alongside their entries
		// in providers.
		Routing: map[string]string{
			"createBranch": "git",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %q (must be json or console)", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return errors.New("telemetry.service_name required when telemetry is enabled")
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate)
		}
	}

	if c.ToolClient.MaxAttempts < 1 {
		return fmt.Errorf("tool_client.max_attempts must be at least 1, got %d", c.ToolClient.MaxAttempts)
	}
	if c.ToolClient.InitialBackoff.Duration() <= 0 {
		return errors.New("tool_client.initial_backoff must be positive")
	}
	if c.ToolClient.MaxBackoff.Duration() < c.ToolClient.InitialBackoff.Duration() {
		return errors.New("tool_client.max_backoff must be >= initial_backoff")
	}
	if c.ToolClient.DegradeThreshold < 1 {
		return fmt.Errorf("tool_client.degrade_threshold must be at least 1, got %d", c.ToolClient.DegradeThreshold)
	}

	switch c.Inference.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid inference.provider: %q (must be anthropic or openai)", c.Inference.Provider)
	}
	if c.Inference.RatePerSec <= 0 {
		return errors.New("inference.rate_per_sec must be positive")
	}

	if c.Coordinator.MaxConcurrentResources < 1 {
		return fmt.Errorf("coordinator.max_concurrent_resources must be at least 1, got %d", c.Coordinator.MaxConcurrentResources)
	}

	if c.Executor.StepTimeout.Duration() <= 0 {
		return errors.New("executor.step_timeout must be positive")
	}
	if c.Executor.LockWait.Duration() < 0 {
		return errors.New("executor.lock_wait cannot be negative")
	}

	if c.Session.ConfirmWait.Duration() < 0 {
		return errors.New("session.confirm_wait cannot be negative")
	}
	if c.Session.SourceBuffer < 1 {
		return fmt.Errorf("session.source_buffer must be at least 1, got %d", c.Session.SourceBuffer)
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr required when server is enabled")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Endpoint == "" {
			return fmt.Errorf("provider %q has no endpoint", p.Name)
		}
		if len(p.Operations) == 0 {
			return fmt.Errorf("provider %q advertises no operations", p.Name)
		}
	}

	return nil
}
