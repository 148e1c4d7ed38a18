// Package config provides configuration types and loading functionality
// for the price tracker.
package config

import "time"

// Config is the root configuration structure
type Config struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Storage    StorageConfig    `yaml:"storage"`
	Notify     NotifyConfig     `yaml:"notify"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FetchConfig controls page retrieval
type FetchConfig struct {
	TimeoutSeconds   int    `yaml:"timeoutSeconds"`
	MaxBodyBytes     int64  `yaml:"maxBodyBytes"`
	UserAgent        string `yaml:"userAgent,omitempty"`
	DelayMS          int    `yaml:"delayMs"`
	RespectRobotsTxt bool   `yaml:"respectRobotsTxt"`
}

// RefreshConfig controls the refresh batch
type RefreshConfig struct {
	StaleAfterHours float64 `yaml:"staleAfterHours"`
	Concurrency     int     `yaml:"concurrency"`
	MaxRetries      int     `yaml:"maxRetries"`
	BackoffBaseMS   int     `yaml:"backoffBaseMs"`
	BackoffMaxMS    int     `yaml:"backoffMaxMs"`
	JitterFraction  float64 `yaml:"jitterFraction"`
}

// AlertsConfig controls baseline evaluation
type AlertsConfig struct {
	Threshold  float64 `yaml:"threshold"`
	WindowDays int     `yaml:"windowDays"`
	MinSamples int     `yaml:"minSamples"`
}

// ExtractionConfig controls the extraction strategies
type ExtractionConfig struct {
	StructuredHosts    []string `yaml:"structuredHosts,omitempty"`
	DefaultCurrency    string   `yaml:"defaultCurrency"`
	PriceSelectors     []string `yaml:"priceSelectors,omitempty"`
	TitleSelectors     []string `yaml:"titleSelectors,omitempty"`
	DisableStructured  bool     `yaml:"disableStructured,omitempty"`
	StructuredPriority int      `yaml:"structuredPriority"`
	HeuristicPriority  int      `yaml:"heuristicPriority"`
}

// StorageConfig selects the product store
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn,omitempty"`
	SeedFile string `yaml:"seedFile,omitempty"`
	Migrate  bool   `yaml:"migrate"`
}

// NotifyConfig selects where alert digests go
type NotifyConfig struct {
	Driver        string `yaml:"driver"`
	RedisURL      string `yaml:"redisUrl,omitempty"`
	QueueKey      string `yaml:"queueKey,omitempty"`
	MarkerPrefix  string `yaml:"markerPrefix,omitempty"`
	DedupTTLHours int    `yaml:"dedupTtlHours"`
}

// ServerConfig controls the long-running serve command
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	RefreshIntervalMinutes int    `yaml:"refreshIntervalMinutes"`
	AlertIntervalMinutes   int    `yaml:"alertIntervalMinutes"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			TimeoutSeconds:   15,
			MaxBodyBytes:     5 << 20,
			UserAgent:        "Mozilla/5.0 (compatible; DealPulse/1.0)",
			DelayMS:          1000,
			RespectRobotsTxt: true,
		},
		Refresh: RefreshConfig{
			StaleAfterHours: 23,
			Concurrency:     4,
			MaxRetries:      3,
			BackoffBaseMS:   1000,
			BackoffMaxMS:    30000,
			JitterFraction:  0.2,
		},
		Alerts: AlertsConfig{
			Threshold:  0.10,
			WindowDays: 30,
			MinSamples: 2,
		},
		Extraction: ExtractionConfig{
			DefaultCurrency:    "USD",
			StructuredPriority: 10,
			HeuristicPriority:  100,
		},
		Storage: StorageConfig{
			Driver:  "memory",
			Migrate: true,
		},
		Notify: NotifyConfig{
			Driver:        "log",
			DedupTTLHours: 24 * 45,
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			RefreshIntervalMinutes: 60,
			AlertIntervalMinutes:   24 * 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FetchConfig) Delay() time.Duration {
	return time.Duration(f.DelayMS) * time.Millisecond
}

func (r RefreshConfig) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterHours * float64(time.Hour))
}

func (r RefreshConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMS) * time.Millisecond
}

func (r RefreshConfig) BackoffMax() time.Duration {
	return time.Duration(r.BackoffMaxMS) * time.Millisecond
}

func (a AlertsConfig) Window() time.Duration {
	return time.Duration(a.WindowDays) * 24 * time.Hour
}

func (n NotifyConfig) DedupTTL() time.Duration {
	return time.Duration(n.DedupTTLHours) * time.Hour
}

func (s ServerConfig) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMinutes) * time.Minute
}

func (s ServerConfig) AlertInterval() time.Duration {
	return time.Duration(s.AlertIntervalMinutes) * time.Minute
}
