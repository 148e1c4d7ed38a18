package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides config values from the environment. DATABASE_URL and
// REDIS_URL also switch the matching driver on.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
		cfg.Storage.Driver = "postgres"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Notify.RedisURL = v
		cfg.Notify.Driver = "redis"
	}

	strs := map[string]*string{
		"DEALPULSE_STORAGE_DRIVER": &cfg.Storage.Driver,
		"DEALPULSE_SEED_FILE":      &cfg.Storage.SeedFile,
		"DEALPULSE_NOTIFY_DRIVER":  &cfg.Notify.Driver,
		"DEALPULSE_QUEUE_KEY":      &cfg.Notify.QueueKey,
		"DEALPULSE_USER_AGENT":     &cfg.Fetch.UserAgent,
		"DEALPULSE_CURRENCY":       &cfg.Extraction.DefaultCurrency,
		"DEALPULSE_SERVER_ADDR":    &cfg.Server.Addr,
		"DEALPULSE_LOG_LEVEL":      &cfg.Logging.Level,
		"DEALPULSE_LOG_FORMAT":     &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEALPULSE_FETCH_TIMEOUT_SECONDS": &cfg.Fetch.TimeoutSeconds,
		"DEALPULSE_FETCH_DELAY_MS":        &cfg.Fetch.DelayMS,
		"DEALPULSE_CONCURRENCY":           &cfg.Refresh.Concurrency,
		"DEALPULSE_MAX_RETRIES":           &cfg.Refresh.MaxRetries,
		"DEALPULSE_WINDOW_DAYS":           &cfg.Alerts.WindowDays,
		"DEALPULSE_MIN_SAMPLES":           &cfg.Alerts.MinSamples,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, v)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"DEALPULSE_STALE_AFTER_HOURS": &cfg.Refresh.StaleAfterHours,
		"DEALPULSE_THRESHOLD":         &cfg.Alerts.Threshold,
	}
	for key, dst := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", key, v)
		}
		*dst = f
	}

	if v := os.Getenv("DEALPULSE_RESPECT_ROBOTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEALPULSE_RESPECT_ROBOTS: invalid boolean %q", v)
		}
		cfg.Fetch.RespectRobotsTxt = b
	}

	return nil
}
