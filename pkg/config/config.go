// Package config provides configuration structures and loading logic for the
// guardrail pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/rules"
)

// Config holds the full pipeline configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`

	Input  InputConfig  `yaml:"input"`
	Output OutputConfig `yaml:"output"`
	Rules  RulesConfig  `yaml:"rules"`
	Scope  ScopeConfig  `yaml:"scope"`
	Limits LimitsConfig `yaml:"limits"`
	Vector VectorConfig `yaml:"vector"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig holds configuration for the admin HTTP server.
type ServerConfig struct {
	AdminAddress string `yaml:"admin_address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// InputConfig bounds inbound message length.
type InputConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// OutputConfig bounds the sanitized response body.
type OutputConfig struct {
	MaxLength int `yaml:"max_length"`
}

// RuleConfig declares one pattern rule.
type RuleConfig struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Pattern     string `yaml:"pattern"`
	Severity    string `yaml:"severity"`
	Replacement string `yaml:"replacement,omitempty"`
}

// RulesConfig selects the rule set: the built-in table plus any extras, or,
// when the built-ins are disabled, a named subset from the rule registry
// and/or inline extras.
type RulesConfig struct {
	DisableBuiltin bool `yaml:"disable_builtin"`
	// Use references registered rules by name instead of restating their
	// patterns.
	Use   []string     `yaml:"use,omitempty"`
	Extra []RuleConfig `yaml:"extra,omitempty"`
}

// ScopeConfig drives the topic scope policy.
type ScopeConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AllowedTopics   []string `yaml:"allowed_topics,omitempty"`
	OffTopicMarkers []string `yaml:"off_topic_markers,omitempty"`
	MinWords        int      `yaml:"min_words"`
}

// Duration decodes YAML duration strings like "30s" as well as integer
// nanosecond values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LimitsConfig holds the consumption limiter settings.
type LimitsConfig struct {
	Window              Duration `yaml:"window"`
	MaxRequests         int      `yaml:"max_requests"`
	DailyTokenCap       int64    `yaml:"daily_token_cap"`
	MaxTokensPerRequest int64    `yaml:"max_tokens_per_request"`
	SessionIdleTimeout  Duration `yaml:"session_idle_timeout"`
	BreakerThreshold    int      `yaml:"breaker_threshold"`
	BreakerCooldown     Duration `yaml:"breaker_cooldown"`
	Providers           []string `yaml:"providers,omitempty"`
}

// BaselineConfig is the per-model statistical baseline.
type BaselineConfig struct {
	Mean             float64 `yaml:"mean"`
	MaxMeanDeviation float64 `yaml:"max_mean_deviation"`
	MinStdDev        float64 `yaml:"min_std_dev"`
	MaxStdDev        float64 `yaml:"max_std_dev"`
}

// ModelConfig declares one approved embedding model.
type ModelConfig struct {
	ID         string          `yaml:"id"`
	Provider   string          `yaml:"provider"`
	Dimensions int             `yaml:"dimensions"`
	MinValue   float64         `yaml:"min_value"`
	MaxValue   float64         `yaml:"max_value"`
	Baseline   *BaselineConfig `yaml:"baseline,omitempty"`
}

// VectorConfig holds the integrity checker settings. An empty Models list
// keeps the built-in whitelist.
type VectorConfig struct {
	MinUniqueRatio  float64       `yaml:"min_unique_ratio"`
	MaxExtremeRatio float64       `yaml:"max_extreme_ratio"`
	ExtremeValue    float64       `yaml:"extreme_value"`
	Models          []ModelConfig `yaml:"models,omitempty"`
}

// AuditConfig sizes the in-memory event ring.
type AuditConfig struct {
	RingCapacity int `yaml:"ring_capacity"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file or override sets a
// value.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{AdminAddress: ":19090"},
		Logging: LoggingConfig{Level: "info"},
		Input:   InputConfig{MinLength: 2, MaxLength: 5000},
		Output:  OutputConfig{MaxLength: 8000},
		Scope: ScopeConfig{
			Enabled:         true,
			AllowedTopics:   rules.BuiltinScopeTopics(),
			OffTopicMarkers: rules.BuiltinOffTopicMarkers(),
			MinWords:        4,
		},
		Limits: LimitsConfig{
			Window:              Duration(time.Minute),
			MaxRequests:         10,
			DailyTokenCap:       50_000,
			MaxTokensPerRequest: 4_000,
			SessionIdleTimeout:  Duration(30 * time.Minute),
			BreakerThreshold:    5,
			BreakerCooldown:     Duration(30 * time.Second),
		},
		Vector: VectorConfig{
			MinUniqueRatio:  0.8,
			MaxExtremeRatio: 0.1,
			ExtremeValue:    0.8,
		},
		Audit: AuditConfig{RingCapacity: 4096},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("AEGIS_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}
	if val := os.Getenv("AEGIS_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("AEGIS_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("AEGIS_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("AEGIS_RATE_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Limits.MaxRequests = n
		}
	}
	if val := os.Getenv("AEGIS_DAILY_TOKEN_CAP"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Limits.DailyTokenCap = n
		}
	}
	if val := os.Getenv("AEGIS_PROVIDERS"); val != "" {
		parts := strings.Split(val, ",")
		providers := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
		cfg.Limits.Providers = providers
	}
}

// Validate normalizes the configuration and rejects inconsistent settings.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input configuration: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output configuration: %w", err)
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules configuration: %w", err)
	}
	if err := c.Scope.Validate(); err != nil {
		return fmt.Errorf("scope configuration: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits configuration: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector configuration: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit configuration: %w", err)
	}
	if strings.TrimSpace(c.Server.AdminAddress) == "" {
		c.Server.AdminAddress = ":19090"
	}
	return nil
}

// Validate normalizes the log level.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

// Validate checks the input length bounds.
func (c *InputConfig) Validate() error {
	if c.MinLength <= 0 {
		c.MinLength = 2
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 5000
	}
	if c.MinLength >= c.MaxLength {
		return fmt.Errorf("min_length %d must be below max_length %d", c.MinLength, c.MaxLength)
	}
	return nil
}

// Validate checks the output length bound.
func (c *OutputConfig) Validate() error {
	if c.MaxLength <= 0 {
		c.MaxLength = 8000
	}
	return nil
}

// Validate checks declared rules for well-formedness. Pattern compilation
// happens later, when the rule set is built.
func (c *RulesConfig) Validate() error {
	if c.DisableBuiltin && len(c.Extra) == 0 && len(c.Use) == 0 {
		return fmt.Errorf("disable_builtin requires at least one used or extra rule")
	}
	for _, name := range c.Use {
		if _, ok := rules.GlobalRegistry().Resolve(name); !ok {
			return fmt.Errorf("used rule %q is not registered", name)
		}
	}
	for i, rule := range c.Extra {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("extra rule %d: name is required", i)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("extra rule %q: pattern is required", rule.Name)
		}
		if rule.Category != "" && !domain.ValidCategory(domain.Category(rule.Category)) {
			return fmt.Errorf("extra rule %q: unknown category %q", rule.Name, rule.Category)
		}
		if rule.Severity != "" && !domain.ValidSeverity(domain.Severity(rule.Severity)) {
			return fmt.Errorf("extra rule %q: unknown severity %q", rule.Name, rule.Severity)
		}
	}
	return nil
}

// Validate normalizes the scope settings.
func (c *ScopeConfig) Validate() error {
	if c.MinWords <= 0 {
		c.MinWords = 4
	}
	if c.Enabled && len(c.AllowedTopics) == 0 && len(c.OffTopicMarkers) == 0 {
		return fmt.Errorf("scope enabled without topics or markers")
	}
	return nil
}

// Validate normalizes the limiter settings.
func (c *LimitsConfig) Validate() error {
	if c.Window <= 0 {
		c.Window = Duration(time.Minute)
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	if c.DailyTokenCap <= 0 {
		c.DailyTokenCap = 50_000
	}
	if c.MaxTokensPerRequest <= 0 {
		c.MaxTokensPerRequest = 4_000
	}
	if c.MaxTokensPerRequest > c.DailyTokenCap {
		return fmt.Errorf("max_tokens_per_request %d exceeds daily_token_cap %d", c.MaxTokensPerRequest, c.DailyTokenCap)
	}
	if c.SessionIdleTimeout <= 0 {
		c.SessionIdleTimeout = Duration(30 * time.Minute)
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = Duration(30 * time.Second)
	}
	return nil
}

// Validate normalizes the vector thresholds and checks model declarations.
func (c *VectorConfig) Validate() error {
	if c.MinUniqueRatio <= 0 {
		c.MinUniqueRatio = 0.8
	}
	if c.MaxExtremeRatio <= 0 {
		c.MaxExtremeRatio = 0.1
	}
	if c.ExtremeValue <= 0 {
		c.ExtremeValue = 0.8
	}
	seen := make(map[string]bool, len(c.Models))
	for i, model := range c.Models {
		if strings.TrimSpace(model.ID) == "" {
			return fmt.Errorf("model %d: id is required", i)
		}
		if seen[model.ID] {
			return fmt.Errorf("duplicate model %q", model.ID)
		}
		seen[model.ID] = true
		if model.Dimensions <= 0 {
			return fmt.Errorf("model %q: dimensions must be positive", model.ID)
		}
		if model.MinValue >= model.MaxValue {
			return fmt.Errorf("model %q: min_value must be below max_value", model.ID)
		}
	}
	return nil
}

// Validate normalizes the ring capacity.
func (c *AuditConfig) Validate() error {
	if c.RingCapacity <= 0 {
		c.RingCapacity = 4096
	}
	return nil
}
