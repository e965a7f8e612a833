// Package config loads runtime configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/logging"
	"gopkg.in/yaml.v3"
)

// Planner providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REPLAN_"

// PlannerConfig selects and tunes the plan generation backend.
type PlannerConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
	// APIKey is usually left empty so the provider SDK reads its own
	// environment variable.
	APIKey string `yaml:"api_key"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json | text
	AddSource bool   `yaml:"add_source"`
}

// Config is the root configuration.
type Config struct {
	MaxIterations       int           `yaml:"max_iterations"`
	MaxConcurrentRuns   int           `yaml:"max_concurrent_runs"`
	ToolTimeout         time.Duration `yaml:"tool_timeout"`
	InterventionTimeout time.Duration `yaml:"intervention_timeout"`

	Planner   PlannerConfig    `yaml:"planner"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxIterations: 10,
		Planner: PlannerConfig{
			Provider:    ProviderAnthropic,
			Temperature: 0.2,
			MaxTokens:   2048,
			MaxRetries:  2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: telemetry.Config{
			Exporter:    "stdout",
			ServiceName: "replan",
			SampleRate:  1,
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file is not an error. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		case len(data) > 0:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// ApplyEnv applies REPLAN_* overrides looked up through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	integer("MAX_ITERATIONS", &c.MaxIterations)
	integer("MAX_CONCURRENT_RUNS", &c.MaxConcurrentRuns)
	duration("TOOL_TIMEOUT", &c.ToolTimeout)
	duration("INTERVENTION_TIMEOUT", &c.InterventionTimeout)
	str("PLANNER_PROVIDER", &c.Planner.Provider)
	str("PLANNER_MODEL", &c.Planner.Model)
	str("PLANNER_API_KEY", &c.Planner.APIKey)
	integer("PLANNER_MAX_RETRIES", &c.Planner.MaxRetries)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	boolean("TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	str("TELEMETRY_EXPORTER", &c.Telemetry.Exporter)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.MaxIterations < 0 {
		errs = append(errs, errors.New("max_iterations must not be negative"))
	}
	if c.MaxConcurrentRuns < 0 {
		errs = append(errs, errors.New("max_concurrent_runs must not be negative"))
	}
	if c.ToolTimeout < 0 {
		errs = append(errs, errors.New("tool_timeout must not be negative"))
	}
	if c.InterventionTimeout < 0 {
		errs = append(errs, errors.New("intervention_timeout must not be negative"))
	}

	switch strings.ToLower(c.Planner.Provider) {
	case ProviderAnthropic, ProviderOpenAI, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("planner.provider %q is not one of anthropic, openai, mock", c.Planner.Provider))
	}
	if c.Planner.MaxRetries < 0 {
		errs = append(errs, errors.New("planner.max_retries must not be negative"))
	}
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		errs = append(errs, fmt.Errorf("planner.temperature %v out of range [0,2]", c.Planner.Temperature))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", c.Log.Format))
	}

	switch c.Telemetry.Exporter {
	case "", "stdout", "none":
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter %q is not stdout or none", c.Telemetry.Exporter))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate %v out of range [0,1]", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the configured logger.
func (c Config) Logger() *logging.AgentLogger {
	return logging.NewSlogLogger(logging.ParseLevel(c.Log.Level), c.Log.Format, c.Log.AddSource)
}
