package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().MaxIterations, cfg.MaxIterations)
	assert.Equal(t, ProviderAnthropic, cfg.Planner.Provider)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_iterations: 4
tool_timeout: 30s
intervention_timeout: 5m
planner:
  provider: openai
  model: gpt-4o-mini
  temperature: 0.5
log:
  level: debug
  format: json
telemetry:
  enabled: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 5*time.Minute, cfg.InterventionTimeout)
	assert.Equal(t, ProviderOpenAI, cfg.Planner.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Planner.Model)
	assert.Equal(t, 0.5, cfg.Planner.Temperature)
	assert.Equal(t, 2, cfg.Planner.MaxRetries, "unset keys keep their defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "replan", cfg.Telemetry.ServiceName)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: [1"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"REPLAN_MAX_ITERATIONS":    "3",
		"REPLAN_TOOL_TIMEOUT":      "2s",
		"REPLAN_PLANNER_PROVIDER":  "mock",
		"REPLAN_LOG_LEVEL":         "warn",
		"REPLAN_TELEMETRY_ENABLED": "true",
		"UNRELATED":                "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.ToolTimeout)
	assert.Equal(t, ProviderMock, cfg.Planner.Provider)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"REPLAN_MAX_ITERATIONS": "many",
		"REPLAN_TOOL_TIMEOUT":   "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPLAN_MAX_ITERATIONS")
	assert.Contains(t, err.Error(), "REPLAN_TOOL_TIMEOUT")
	assert.Equal(t, 10, cfg.MaxIterations)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"provider", func(c *Config) { c.Planner.Provider = "gemini" }, "planner.provider"},
		{"iterations", func(c *Config) { c.MaxIterations = -1 }, "max_iterations"},
		{"timeout", func(c *Config) { c.ToolTimeout = -time.Second }, "tool_timeout"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }, "telemetry.exporter"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
