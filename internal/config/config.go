// Package config provides configuration management for the Claude Optimization
// Suite. It handles loading and parsing YAML configuration files, and provides
// structured access to application settings including the server port, Claude
// API parameters, batch processing limits, pricing tables, and ledger backends.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values applied when the configuration file omits them.
const (
	DefaultPort          = 8080
	DefaultModel         = "claude-opus-4-1-20250805"
	DefaultBaseURL       = "https://api.anthropic.com/v1/messages"
	DefaultMaxTokens     = 4096
	DefaultTemperature   = 0.7
	DefaultTopP          = 0.95
	DefaultRetryAttempts = 3
	DefaultTimeout       = 60
	DefaultMaxWorkers    = 5

	// DefaultCostPerToken mirrors the flat estimate used by revenue reports.
	DefaultCostPerToken = 0.00001
	// DefaultCostPerRequest is the per-request cost estimate used by revenue projections.
	DefaultCostPerRequest = 0.10
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the TCP port the HTTP API server listens on.
	Port int `yaml:"port"`

	// APIKeys is a list of keys for authenticating clients to this server.
	// When empty, the API is open (local use).
	APIKeys []string `yaml:"api-keys"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// Debug enables verbose logging when true.
	Debug bool `yaml:"debug"`

	// LoggingToFile redirects logs from stdout to rotating files under the
	// workspace logs directory.
	LoggingToFile bool `yaml:"logging-to-file"`

	// UsageStatisticsEnabled toggles in-memory usage aggregation.
	UsageStatisticsEnabled bool `yaml:"usage-statistics-enabled"`

	// WorkspaceDir is the root directory for logs/, backups/, data/ and
	// outputs/. Defaults to the current working directory.
	WorkspaceDir string `yaml:"workspace-dir"`

	// Scripts lists files the provisioner marks executable when present.
	Scripts []string `yaml:"scripts"`

	// Claude holds the upstream API client settings.
	Claude ClaudeConfig `yaml:"claude"`

	// Batch holds concurrent batch processing settings.
	Batch BatchConfig `yaml:"batch"`

	// Pricing maps a service type to its unit price in USD.
	Pricing map[string]float64 `yaml:"pricing"`

	// CostPerToken is the estimated upstream cost of a single token.
	CostPerToken float64 `yaml:"cost-per-token"`

	// CostPerRequest is the estimated upstream cost of a single request,
	// used for revenue projections.
	CostPerRequest float64 `yaml:"cost-per-request"`

	// Ledger selects and configures the transaction ledger backend.
	Ledger LedgerConfig `yaml:"ledger"`

	// WorkflowsFile points to an optional YAML file with named workflows.
	WorkflowsFile string `yaml:"workflows-file"`
}

// ClaudeConfig holds the Claude messages API client settings.
type ClaudeConfig struct {
	// APIKey authenticates against the Claude API. When empty, the
	// CLAUDE_API_KEY environment variable is used.
	APIKey string `yaml:"api-key"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// MaxTokens caps the response length unless a request overrides it.
	MaxTokens int `yaml:"max-tokens"`

	// Temperature and TopP are sampling parameters. Nil means unset and falls
	// back to the default; an explicit 0 in the file is honored.
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top-p"`

	// RetryAttempts is the number of delivery attempts per request.
	RetryAttempts int `yaml:"retry-attempts"`

	// TimeoutSeconds bounds a single HTTP round trip.
	TimeoutSeconds int `yaml:"timeout-seconds"`

	// BaseURL is the messages endpoint.
	BaseURL string `yaml:"base-url"`
}

// EffectiveTemperature returns the configured sampling temperature, or the
// default when the file leaves it unset.
func (c ClaudeConfig) EffectiveTemperature() float64 {
	if c.Temperature != nil {
		return *c.Temperature
	}
	return DefaultTemperature
}

// EffectiveTopP returns the configured top-p, or the default when the file
// leaves it unset.
func (c ClaudeConfig) EffectiveTopP() float64 {
	if c.TopP != nil {
		return *c.TopP
	}
	return DefaultTopP
}

// BatchConfig holds concurrent batch processing settings.
type BatchConfig struct {
	// MaxWorkers caps the number of prompts processed concurrently.
	MaxWorkers int `yaml:"max-workers"`
}

// LedgerConfig selects the transaction ledger backend.
type LedgerConfig struct {
	// Backend is "file" (default) or "postgres".
	Backend string `yaml:"backend"`

	// DSN is the Postgres connection string. The LEDGER_DSN environment
	// variable takes precedence when set.
	DSN string `yaml:"dsn"`

	// Schema is the Postgres schema holding the transactions table.
	Schema string `yaml:"schema"`
}

// DefaultPricing returns the built-in service price table.
func DefaultPricing() map[string]float64 {
	return map[string]float64{
		"blog_post":          50.0,
		"code_generation":    100.0,
		"data_analysis":      150.0,
		"marketing_campaign": 200.0,
	}
}

// LoadConfig reads the configuration file at the given path and unmarshals it.
// Missing files are an error; use LoadConfigOptional to tolerate them.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the configuration file at the given path. When
// optional is true a missing or empty file yields a default configuration
// instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && os.IsNotExist(err) {
			cfg := &Config{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s failed: %w", configFile, err)
	}

	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		if optional {
			fresh := &Config{}
			fresh.applyDefaults()
			return fresh, nil
		}
		return nil, fmt.Errorf("config: parse %s failed: %w", configFile, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Claude.Model == "" {
		c.Claude.Model = DefaultModel
	}
	if c.Claude.BaseURL == "" {
		c.Claude.BaseURL = DefaultBaseURL
	}
	if c.Claude.MaxTokens <= 0 {
		c.Claude.MaxTokens = DefaultMaxTokens
	}
if c.Claude.RetryAttempts <= 0 {
		c.Claude.RetryAttempts = DefaultRetryAttempts
	}
	if c.Claude.TimeoutSeconds <= 0 {
		c.Claude.TimeoutSeconds = DefaultTimeout
	}
	if c.Batch.MaxWorkers <= 0 {
		c.Batch.MaxWorkers = DefaultMaxWorkers
	}
	if c.CostPerToken <= 0 {
		c.CostPerToken = DefaultCostPerToken
	}
	if c.CostPerRequest <= 0 {
		c.CostPerRequest = DefaultCostPerRequest
	}
	if len(c.Pricing) == 0 {
		c.Pricing = DefaultPricing()
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "file"
	}
	if c.WorkspaceDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.WorkspaceDir = wd
		} else {
			c.WorkspaceDir = "."
		}
	}
}

// ResolveAPIKey returns the Claude API key from the configuration, falling
// back to the CLAUDE_API_KEY environment variable.
func (c *Config) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.Claude.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("CLAUDE_API_KEY"))
}
