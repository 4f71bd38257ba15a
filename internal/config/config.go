// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration. Every field is
// first populated from its environment variable default, then
// overridden by the YAML config file when one is loaded.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Vault   VaultConfig   `yaml:"vault"`
	Retry   RetryConfig   `yaml:"retry"`
	Routing RoutingConfig `yaml:"routing"`
	Health  HealthConfig  `yaml:"health"`
	Alert   AlertConfig   `yaml:"alert"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestDeadline time.Duration `yaml:"request_deadline"`
}

// StoreConfig locates the embedded persistence file.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// VaultConfig controls the credential-encryption key source.
type VaultConfig struct {
	SecretKeyEnvVar  string `yaml:"secret_key_env_var"`
	SecretKeyEnvFile string `yaml:"secret_key_env_file"`
}

// RetryConfig mirrors internal/retry.Config, expressed as durations
// the gateway operator tunes without a rebuild.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Base        time.Duration `yaml:"base"`
	Growth      float64       `yaml:"growth"`
}

// RoutingConfig carries the family-resolution and fallback rule maps
// the router consumes.
type RoutingConfig struct {
	Rules    map[string]string `yaml:"rules"`    // model prefix -> family
	Fallback map[string]string `yaml:"fallback"` // family -> fallback family
}

// HealthConfig tunes the background health monitor's cadence.
type HealthConfig struct {
	ProbePeriod  time.Duration `yaml:"probe_period"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// AlertConfig tunes the background alert manager's thresholds and
// dispatch channels.
type AlertConfig struct {
	Enabled                   bool    `yaml:"enabled"`
	ConsecutiveErrorThreshold int     `yaml:"consecutive_error_threshold"`
	LatencyMultiplier         float64 `yaml:"latency_multiplier"`
	BudgetThresholdPercent    float64 `yaml:"budget_threshold_percent"`
	WebhookURL                string  `yaml:"webhook_url"`
	DesktopNotify             bool    `yaml:"desktop_notify"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults, the
// same values LoadFromEnv falls back to when a variable is unset.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestDeadline: 60 * time.Second,
		},
		Store: StoreConfig{
			DatabasePath: "aihub.db",
		},
		Vault: VaultConfig{
			SecretKeyEnvVar:  "HUB_SECRET_KEY",
			SecretKeyEnvFile: ".env",
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxAttempts: 3,
			Base:        time.Second,
			Growth:      5,
		},
		Routing: RoutingConfig{
			Rules: map[string]string{
				"gpt-":    "openai",
				"o1":      "openai",
				"claude-": "anthropic",
			},
			Fallback: map[string]string{},
		},
		Health: HealthConfig{
			ProbePeriod:  30 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Alert: AlertConfig{
			Enabled:                   true,
			ConsecutiveErrorThreshold: 3,
			LatencyMultiplier:         3,
			BudgetThresholdPercent:    90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadFromEnv builds a Config from the HUB_*/DATABASE_PATH/RETRY_*/
// FALLBACK_RULES/HEALTH_*/ALERT_*/ROUTING_RULES environment variables
// documented for the gateway, falling back to DefaultConfig for
// anything unset.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("HUB_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("HUB_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("HUB_REQUEST_DEADLINE_SEC"); ok {
		cfg.Server.RequestDeadline = time.Duration(v) * time.Second
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v, ok := envBool("RETRY_ENABLED"); ok {
		cfg.Retry.Enabled = v
	}
	if v, ok := envInt("RETRY_MAX_ATTEMPTS"); ok {
		cfg.Retry.MaxAttempts = v
	}
	if v, ok := envFloat("RETRY_BASE_SEC"); ok {
		cfg.Retry.Base = time.Duration(v * float64(time.Second))
	}
	if v, ok := envFloat("RETRY_GROWTH"); ok {
		cfg.Retry.Growth = v
	}

	if v := os.Getenv("FALLBACK_RULES"); v != "" {
		cfg.Routing.Fallback = parsePairs(v)
	}
	if v := os.Getenv("ROUTING_RULES"); v != "" {
		cfg.Routing.Rules = parsePairs(v)
	}

	if v, ok := envFloat("HEALTH_PROBE_PERIOD_SEC"); ok {
		cfg.Health.ProbePeriod = time.Duration(v * float64(time.Second))
	}
	if v, ok := envFloat("HEALTH_PROBE_TIMEOUT_SEC"); ok {
		cfg.Health.ProbeTimeout = time.Duration(v * float64(time.Second))
	}

	if v, ok := envBool("ALERT_ENABLED"); ok {
		cfg.Alert.Enabled = v
	}
	if v, ok := envInt("ALERT_CONSECUTIVE_ERROR_THRESHOLD"); ok {
		cfg.Alert.ConsecutiveErrorThreshold = v
	}
	if v, ok := envFloat("ALERT_LATENCY_MULTIPLIER"); ok {
		cfg.Alert.LatencyMultiplier = v
	}
	if v, ok := envFloat("ALERT_BUDGET_THRESHOLD_PERCENT"); ok {
		cfg.Alert.BudgetThresholdPercent = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alert.WebhookURL = v
	}
	if v, ok := envBool("ALERT_DESKTOP_NOTIFY"); ok {
		cfg.Alert.DesktopNotify = v
	}

	return cfg
}

// LoadFromFile layers a YAML config file (environment variables in
// ${VAR_NAME} form are expanded first) over LoadFromEnv's result, so
// an operator can start from environment defaults and override only
// what the file specifies.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := LoadFromEnv()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Growth <= 0 {
		return fmt.Errorf("retry.growth must be positive")
	}
	if c.Alert.ConsecutiveErrorThreshold < 1 {
		return fmt.Errorf("alert.consecutive_error_threshold must be at least 1")
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// parsePairs parses a comma-separated list of "key:value" pairs, the
// format FALLBACK_RULES and ROUTING_RULES are documented to use.
func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}
