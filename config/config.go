// Package config provides configuration loading and management for defcheck.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cleaning modes.
const (
	CleaningModeHTML = "html"
	CleaningModeNATS = "nats"
)

// Config represents the complete defcheck configuration
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Rules    RulesConfig    `yaml:"rules"`
	Cleaning CleaningConfig `yaml:"cleaning"`
	Batch    BatchConfig    `yaml:"batch"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// CatalogConfig configures where rule definitions come from
type CatalogConfig struct {
	// Path is a YAML or JSON catalog file (empty = embedded default catalog)
	Path string `yaml:"path"`
	// Watch reloads the catalog when the file changes
	Watch bool `yaml:"watch"`
	// Debounce coalesces bursts of file events
	Debounce time.Duration `yaml:"debounce"`
	// DefaultProfile applies when a request names no profile (empty = all rules)
	DefaultProfile string `yaml:"default_profile"`
}

// ScoringConfig configures the acceptance policy
type ScoringConfig struct {
	// Threshold is the minimum overall score for an acceptable definition
	Threshold float64 `yaml:"threshold"`
	// GateSeverities lists severities whose failure always rejects
	GateSeverities []string `yaml:"gate_severities"`
}

// RulesConfig configures rule execution
type RulesConfig struct {
	// Concurrency bounds parallel rules per request (1 = sequential)
	Concurrency int `yaml:"concurrency"`
	// Timeout bounds a single rule (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`
}

// CleaningConfig configures the text-cleaning collaborator
type CleaningConfig struct {
	Enabled bool `yaml:"enabled"`
	// Mode is "html" (in process) or "nats" (remote service)
	Mode string `yaml:"mode"`
	// Subject is the NATS subject of the remote cleaning service
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// BatchConfig configures batch validation
type BatchConfig struct {
	// MaxConcurrency caps the concurrency a batch caller may request
	MaxConcurrency int `yaml:"max_concurrency"`
}

// NATSConfig configures the NATS connection and request/reply API
type NATSConfig struct {
	// URL is the NATS server URL (empty = NATS disabled)
	URL string `yaml:"url"`
	// Prefix is the subject prefix for <prefix>.validate and <prefix>.batch
	Prefix string `yaml:"prefix"`
	// Queue is the queue group shared by engine instances
	Queue string `yaml:"queue"`
	// Timeout bounds one request received over NATS
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path:     "", // Embedded
			Debounce: 500 * time.Millisecond,
		},
		Scoring: ScoringConfig{
			Threshold:      0.75,
			GateSeverities: []string{"mandatory"},
		},
		Rules: RulesConfig{
			Concurrency: 1,
			Timeout:     2 * time.Second,
		},
		Cleaning: CleaningConfig{
			Enabled: false,
			Mode:    CleaningModeHTML,
			Subject: "defcheck.clean",
			Timeout: 5 * time.Second,
		},
		Batch: BatchConfig{
			MaxConcurrency: 8,
		},
		NATS: NATSConfig{
			URL:     "",
			Prefix:  "defcheck",
			Queue:   "defcheck-workers",
			Timeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Catalog.Debounce < 0 {
		return fmt.Errorf("catalog.debounce must not be negative")
	}
	if c.Catalog.Watch && c.Catalog.Path == "" {
		return fmt.Errorf("catalog.watch requires catalog.path")
	}
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 1 {
		return fmt.Errorf("scoring.threshold must be between 0 and 1")
	}
	for _, s := range c.Scoring.GateSeverities {
		switch strings.ToLower(s) {
		case "mandatory", "high", "medium", "low":
		default:
			return fmt.Errorf("scoring.gate_severities: unknown severity %q", s)
		}
	}
	if c.Rules.Concurrency < 0 {
		return fmt.Errorf("rules.concurrency must not be negative")
	}
	if c.Rules.Timeout < 0 {
		return fmt.Errorf("rules.timeout must not be negative")
	}
	switch c.Cleaning.Mode {
	case CleaningModeHTML:
	case CleaningModeNATS:
		if c.Cleaning.Enabled && c.NATS.URL == "" {
			return fmt.Errorf("cleaning.mode nats requires nats.url")
		}
		if c.Cleaning.Subject == "" {
			return fmt.Errorf("cleaning.subject is required for mode nats")
		}
	default:
		return fmt.Errorf("cleaning.mode must be %q or %q", CleaningModeHTML, CleaningModeNATS)
	}
	if c.Cleaning.Timeout <= 0 {
		return fmt.Errorf("cleaning.timeout must be positive")
	}
	if c.Batch.MaxConcurrency < 1 {
		return fmt.Errorf("batch.max_concurrency must be at least 1")
	}
	if c.NATS.URL != "" && c.NATS.Prefix == "" {
		return fmt.Errorf("nats.prefix is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", level)
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := loadInto(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// loadInto overlays the keys present in the file at path onto config.
func loadInto(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). Boolean switches can only be turned on by Merge.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Catalog
	if other.Catalog.Path != "" {
		c.Catalog.Path = other.Catalog.Path
	}
	if other.Catalog.Watch {
		c.Catalog.Watch = true
	}
	if other.Catalog.Debounce != 0 {
		c.Catalog.Debounce = other.Catalog.Debounce
	}
	if other.Catalog.DefaultProfile != "" {
		c.Catalog.DefaultProfile = other.Catalog.DefaultProfile
	}

	// Scoring
	if other.Scoring.Threshold != 0 {
		c.Scoring.Threshold = other.Scoring.Threshold
	}
	if len(other.Scoring.GateSeverities) > 0 {
		c.Scoring.GateSeverities = other.Scoring.GateSeverities
	}

	// Rules
	if other.Rules.Concurrency != 0 {
		c.Rules.Concurrency = other.Rules.Concurrency
	}
	if other.Rules.Timeout != 0 {
		c.Rules.Timeout = other.Rules.Timeout
	}

	// Cleaning
	if other.Cleaning.Enabled {
		c.Cleaning.Enabled = true
	}
	if other.Cleaning.Mode != "" {
		c.Cleaning.Mode = other.Cleaning.Mode
	}
	if other.Cleaning.Subject != "" {
		c.Cleaning.Subject = other.Cleaning.Subject
	}
	if other.Cleaning.Timeout != 0 {
		c.Cleaning.Timeout = other.Cleaning.Timeout
	}

	// Batch
	if other.Batch.MaxConcurrency != 0 {
		c.Batch.MaxConcurrency = other.Batch.MaxConcurrency
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Prefix != "" {
		c.NATS.Prefix = other.NATS.Prefix
	}
	if other.NATS.Queue != "" {
		c.NATS.Queue = other.NATS.Queue
	}
	if other.NATS.Timeout != 0 {
		c.NATS.Timeout = other.NATS.Timeout
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
