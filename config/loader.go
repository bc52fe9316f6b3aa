package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "defcheck.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/defcheck"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is the dotenv file read from the working directory
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "DEFCHECK_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// dir and home default to the working and home directory.
	dir  string
	home string
	// lookupEnv defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, lookupEnv: os.LookupEnv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/defcheck/config.yaml)
// 3. Project config (defcheck.yaml in current or parent directories)
// 4. .env file in the working directory
// 5. DEFCHECK_* environment variables
func (l *Loader) Load() (*Config, error) {
	return l.load("")
}

// LoadFile loads defaults, then path, then the environment layers. The
// user and project files are not consulted.
func (l *Loader) LoadFile(path string) (*Config, error) {
	return l.load(path)
}

func (l *Loader) load(explicit string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	if explicit != "" {
		if err := loadInto(config, explicit); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", explicit))
	} else {
		// Load user config
		userConfigPath := l.userConfigPath()
		if userConfigPath != "" {
			if err := loadInto(config, userConfigPath); err == nil {
				l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			} else if !errors.Is(err, os.ErrNotExist) {
				l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
			}
		}

		// Load project config
		projectConfigPath := l.findProjectConfig()
		if projectConfigPath != "" {
			if err := loadInto(config, projectConfigPath); err == nil {
				l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			} else {
				l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
			}
		} else {
			l.logger.Debug("No project config found")
		}
	}

	// Environment overrides
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("no home directory")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) workDir() string {
	if l.dir != "" {
		return l.dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// findProjectConfig searches for defcheck.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.workDir()
	if dir == "" {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// applyEnv overlays .env values and then DEFCHECK_* variables. Process
// environment wins over the .env file.
func (l *Loader) applyEnv(config *Config) error {
	dotenv := map[string]string{}
	if dir := l.workDir(); dir != "" {
		path := filepath.Join(dir, EnvFile)
		vals, err := godotenv.Read(path)
		switch {
		case err == nil:
			dotenv = vals
			l.logger.Debug("Loaded env file", slog.String("path", path))
		case !errors.Is(err, os.ErrNotExist):
			l.logger.Warn("Failed to read env file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := l.lookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("CATALOG_PATH", &config.Catalog.Path)
	boolean("CATALOG_WATCH", &config.Catalog.Watch)
	duration("CATALOG_DEBOUNCE", &config.Catalog.Debounce)
	str("CATALOG_DEFAULT_PROFILE", &config.Catalog.DefaultProfile)
	float("SCORING_THRESHOLD", &config.Scoring.Threshold)
	if v, ok := lookup("SCORING_GATE_SEVERITIES"); ok {
		config.Scoring.GateSeverities = splitList(v)
	}
	integer("RULES_CONCURRENCY", &config.Rules.Concurrency)
	duration("RULES_TIMEOUT", &config.Rules.Timeout)
	boolean("CLEANING_ENABLED", &config.Cleaning.Enabled)
	str("CLEANING_MODE", &config.Cleaning.Mode)
	str("CLEANING_SUBJECT", &config.Cleaning.Subject)
	duration("CLEANING_TIMEOUT", &config.Cleaning.Timeout)
	integer("BATCH_MAX_CONCURRENCY", &config.Batch.MaxConcurrency)
	str("NATS_URL", &config.NATS.URL)
	str("NATS_PREFIX", &config.NATS.Prefix)
	str("NATS_QUEUE", &config.NATS.Queue)
	duration("NATS_TIMEOUT", &config.NATS.Timeout)
	str("HTTP_ADDR", &config.HTTP.Addr)
	str("LOG_LEVEL", &config.Log.Level)
	str("LOG_FORMAT", &config.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
