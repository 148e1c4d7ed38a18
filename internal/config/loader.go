package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// LoadConfig loads configuration from a YAML or JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): %w", err)
			}
		}
	}

	return cfg, nil
}

// Load reads path when given, otherwise starts from DefaultConfig, then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ValidateConfig validates the configuration for required fields and consistency
func ValidateConfig(cfg *Config) error {
	if cfg.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeoutSeconds must be > 0")
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.maxBodyBytes must be > 0")
	}
	if cfg.Fetch.DelayMS < 0 {
		return fmt.Errorf("fetch.delayMs must be >= 0")
	}

	if cfg.Refresh.StaleAfterHours <= 0 {
		return fmt.Errorf("refresh.staleAfterHours must be > 0")
	}
	if cfg.Refresh.Concurrency < 1 {
		cfg.Refresh.Concurrency = 1
	}
	if cfg.Refresh.MaxRetries < 0 {
		return fmt.Errorf("refresh.maxRetries must be >= 0")
	}
	if cfg.Refresh.BackoffBaseMS <= 0 {
		return fmt.Errorf("refresh.backoffBaseMs must be > 0")
	}
	if cfg.Refresh.BackoffMaxMS < cfg.Refresh.BackoffBaseMS {
		return fmt.Errorf("refresh.backoffMaxMs must be >= refresh.backoffBaseMs")
	}
	if cfg.Refresh.JitterFraction < 0 || cfg.Refresh.JitterFraction > 1 {
		return fmt.Errorf("refresh.jitterFraction must be between 0 and 1")
	}

	if cfg.Alerts.Threshold <= 0 || cfg.Alerts.Threshold >= 1 {
		return fmt.Errorf("alerts.threshold must be between 0 and 1 (exclusive)")
	}
	if cfg.Alerts.WindowDays < 1 {
		return fmt.Errorf("alerts.windowDays must be >= 1")
	}
	if cfg.Alerts.MinSamples < 1 {
		return fmt.Errorf("alerts.minSamples must be >= 1")
	}

	if c := cfg.Extraction.DefaultCurrency; c != "" && !currencyCodeRe.MatchString(c) {
		return fmt.Errorf("extraction.defaultCurrency must be an ISO 4217 code, got %q", c)
	}
	for _, sel := range append(append([]string{}, cfg.Extraction.PriceSelectors...), cfg.Extraction.TitleSelectors...) {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("invalid extraction selector %q: %w", sel, err)
		}
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s (valid: memory, postgres)", cfg.Storage.Driver)
	}

	switch cfg.Notify.Driver {
	case "log":
	case "redis":
		if cfg.Notify.RedisURL == "" {
			return fmt.Errorf("notify.redisUrl is required for redis driver")
		}
	default:
		return fmt.Errorf("unknown notify driver: %s (valid: log, redis)", cfg.Notify.Driver)
	}
	if cfg.Notify.DedupTTLHours < 0 {
		return fmt.Errorf("notify.dedupTtlHours must be >= 0")
	}

	if cfg.Server.RefreshIntervalMinutes < 0 || cfg.Server.AlertIntervalMinutes < 0 {
		return fmt.Errorf("server intervals must be >= 0")
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "console" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'console' or 'json'")
	}

	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(cfg *Config, path string) error {
	ext := strings.ToLower(filepath.Ext(path))

	var data []byte
	var err error

	switch ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
