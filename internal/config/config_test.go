package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.ToolClient.MaxAttempts)
	assert.Equal(t, 3, cfg.ToolClient.DegradeThreshold)
	assert.Equal(t, 4, cfg.Coordinator.MaxConcurrentResources)
	assert.Equal(t, "git", cfg.Routing["createBranch"])
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Empty(t, Secret("").String())

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key": "[REDACTED]"}`, string(out))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.ToolClient.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name: "max backoff below initial",
			mutate: func(c *Config) {
				c.ToolClient.InitialBackoff = Duration(time.Second)
				c.ToolClient.MaxBackoff = Duration(time.Millisecond)
			},
			wantErr: "max_backoff",
		},
		{
			name:    "zero degrade threshold",
			mutate:  func(c *Config) { c.ToolClient.DegradeThreshold = 0 },
			wantErr: "degrade_threshold",
		},
		{
			name:    "unknown inference provider",
			mutate:  func(c *Config) { c.Inference.Provider = "llama-at-home" },
			wantErr: "inference.provider",
		},
		{
			name:    "zero coordinator concurrency",
			mutate:  func(c *Config) { c.Coordinator.MaxConcurrentResources = 0 },
			wantErr: "max_concurrent_resources",
		},
		{
			name:    "negative lock wait",
			mutate:  func(c *Config) { c.Executor.LockWait = Duration(-time.Second) },
			wantErr: "lock_wait",
		},
		{
			name:    "zero source buffer",
			mutate:  func(c *Config) { c.Session.SourceBuffer = 0 },
			wantErr: "source_buffer",
		},
		{
			name: "provider without endpoint",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "workspace", Operations: []string{"modifyFile"}}}
			},
			wantErr: "no endpoint",
		},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{
					{Name: "workspace", Endpoint: "http://localhost:8811/mcp", Operations: []string{"modifyFile"}},
					{Name: "workspace", Endpoint: "http://localhost:8812/mcp", Operations: []string{"generateCode"}},
				}
			},
			wantErr: "duplicate provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaver.yaml")
	content := `
logging:
  level: debug
  format: console
tool_client:
  max_attempts: 7
  unreachable_grace: 45s
providers:
  - name: workspace
    endpoint: http://localhost:8811/mcp
    operations: [installDependency, generateCode, modifyFile, generateTests]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 7, cfg.ToolClient.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.ToolClient.UnreachableGrace.Duration())
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "workspace", cfg.Providers[0].Name)
	assert.Len(t, cfg.Providers[0].Operations, 4)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Coordinator.MaxConcurrentResources)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	t.Setenv("WEAVER_LOGGING_LEVEL", "warn")
	t.Setenv("WEAVER_TOOL_CLIENT_MAX_ATTEMPTS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 9, cfg.ToolClient.MaxAttempts)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("WEAVER_LOGGING_FORMAT", "xml")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
