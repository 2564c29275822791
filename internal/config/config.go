// Package config loads the YAML configuration shared by the Operations
// Service and the Orchestrator, following environment-variable overrides
// and default/validation passes in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration document. Both opsmesh binaries decode
// the same file and use the section relevant to the subcommand they run.
type Config struct {
	Ops          OpsConfig          `yaml:"ops"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// OpsConfig configures the Operations Service.
type OpsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// OrchestratorConfig configures the Orchestrator service.
type OrchestratorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	OpsBaseURL string `yaml:"ops_base_url"`

	ModelBaseURL string  `yaml:"model_base_url"`
	DefaultModel string  `yaml:"default_model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`

	ToolsEnabled    bool          `yaml:"tools_enabled"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ToolMaxRetries  int           `yaml:"tool_max_retries"`
	ToolRetryDelay  time.Duration `yaml:"tool_retry_delay"`
	MaxCallsPerTurn int           `yaml:"max_calls_per_turn"`
}

// LoggingConfig configures the shared structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigValidationError aggregates every validation failure found while
// checking a Config, so callers see the full list in one error.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "invalid configuration:\n- " + strings.Join(e.Issues, "\n- ")
}

// Load reads path, expands environment references, decodes it, applies
// OPSMESH_* environment overrides, fills defaults, and validates the
// result. An empty path skips the file and loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(raw, cfg); err != nil {
			return nil, err
		}
	}

	toolsEnabledSet := cfg.Orchestrator.ToolsEnabled || os.Getenv("OPSMESH_TOOLS_ENABLED") != ""
	applyEnvOverrides(cfg)
	applyDefaults(cfg, toolsEnabledSet)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPSMESH_OS_BASE_URL")); v != "" {
		cfg.Orchestrator.OpsBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_MODEL_BASE_URL")); v != "" {
		cfg.Orchestrator.ModelBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_DEFAULT_MODEL")); v != "" {
		cfg.Orchestrator.DefaultModel = v
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_TEMPERATURE")); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Orchestrator.Temperature = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_MAX_TOKENS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxTokens = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_TOOL_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.ToolTimeout = time.Duration(parsed) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_TOOL_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.ToolMaxRetries = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_MAX_CALLS_PER_TURN")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxCallsPerTurn = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_TOOLS_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Orchestrator.ToolsEnabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_COMMAND_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ops.CommandTimeout = time.Duration(parsed) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_OPS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ops.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPSMESH_ORCHESTRATOR_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.Port = parsed
		}
	}
}

func applyDefaults(cfg *Config, toolsEnabledSet bool) {
	if cfg.Ops.Host == "" {
		cfg.Ops.Host = "0.0.0.0"
	}
	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 8081
	}
	if cfg.Ops.CommandTimeout == 0 {
		cfg.Ops.CommandTimeout = 300 * time.Second
	}

	if cfg.Orchestrator.Host == "" {
		cfg.Orchestrator.Host = "0.0.0.0"
	}
	if cfg.Orchestrator.Port == 0 {
		cfg.Orchestrator.Port = 8082
	}
	if cfg.Orchestrator.OpsBaseURL == "" {
		cfg.Orchestrator.OpsBaseURL = "http://localhost:8081"
	}
	if cfg.Orchestrator.ModelBaseURL == "" {
		cfg.Orchestrator.ModelBaseURL = "http://localhost:11434"
	}
	if cfg.Orchestrator.DefaultModel == "" {
		cfg.Orchestrator.DefaultModel = "llama3.1"
	}
	if cfg.Orchestrator.Temperature == 0 {
		cfg.Orchestrator.Temperature = 0.7
	}
	if cfg.Orchestrator.MaxTokens == 0 {
		cfg.Orchestrator.MaxTokens = 4096
	}
	if cfg.Orchestrator.ToolTimeout == 0 {
		cfg.Orchestrator.ToolTimeout = 30 * time.Second
	}
	if cfg.Orchestrator.ToolMaxRetries == 0 {
		cfg.Orchestrator.ToolMaxRetries = 3
	}
	if cfg.Orchestrator.ToolRetryDelay == 0 {
		cfg.Orchestrator.ToolRetryDelay = time.Second
	}
	if cfg.Orchestrator.MaxCallsPerTurn == 0 {
		cfg.Orchestrator.MaxCallsPerTurn = 5
	}
	if !toolsEnabledSet {
		cfg.Orchestrator.ToolsEnabled = true
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Ops.Port < 1 || cfg.Ops.Port > 65535 {
		issues = append(issues, fmt.Sprintf("ops.port %d is out of range", cfg.Ops.Port))
	}
	if cfg.Orchestrator.Port < 1 || cfg.Orchestrator.Port > 65535 {
		issues = append(issues, fmt.Sprintf("orchestrator.port %d is out of range", cfg.Orchestrator.Port))
	}
	if cfg.Orchestrator.Temperature < 0 || cfg.Orchestrator.Temperature > 2 {
		issues = append(issues, fmt.Sprintf("orchestrator.temperature %v is out of range [0,2]", cfg.Orchestrator.Temperature))
	}
	if cfg.Orchestrator.MaxCallsPerTurn < 1 {
		issues = append(issues, "orchestrator.max_calls_per_turn must be at least 1")
	}
	if cfg.Orchestrator.ToolMaxRetries < 0 {
		issues = append(issues, "orchestrator.tool_max_retries cannot be negative")
	}
	if !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	if !validLogFormat(cfg.Logging.Format) {
		issues = append(issues, fmt.Sprintf("logging.format %q is not one of json, text", cfg.Logging.Format))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validLogFormat(format string) bool {
	switch format {
	case "json", "text":
		return true
	default:
		return false
	}
}
