package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/backoff"
)

// Store backends.
const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
	storeRedis    = "redis"
)

// Config is the daemon configuration assembled from the environment.
type Config struct {
	Store       string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	HTTPAddr string
	LogLevel slog.Level

	DiscordToken     string
	DiscordChannelID string
	AMQPURL          string
	AMQPExchange     string
	HassURL          string
	HassToken        string
	SummaryChannelID string

	BackoffName string
	Audit       bool
	Engine      herald.Config
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

// LoadConfig reads the daemon configuration through lookup.
func LoadConfig(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok {
			return v
		}
		return def
	}

	cfg := Config{
		Store:            get("HERALD_STORE", storeMemory),
		DatabaseURL:      get("DATABASE_URL", ""),
		SQLitePath:       get("SQLITE_PATH", "herald.db"),
		RedisURL:         get("REDIS_URL", ""),
		HTTPAddr:         get("HERALD_HTTP_ADDR", ":8080"),
		DiscordToken:     get("DISCORD_TOKEN", ""),
		DiscordChannelID: get("DISCORD_CHANNEL_ID", ""),
		AMQPURL:          get("AMQP_URL", ""),
		AMQPExchange:     get("AMQP_EXCHANGE", "herald.notifications"),
		HassURL:          get("HASS_URL", ""),
		HassToken:        get("HASS_TOKEN", ""),
		SummaryChannelID: get("HERALD_SUMMARY_CHANNEL_ID", ""),
		BackoffName:      get("HERALD_BACKOFF", "exponential"),
		Engine:           herald.DefaultConfig(),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("HERALD_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("HERALD_LOG_LEVEL: %w", err)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HERALD_POLL_INTERVAL", &cfg.Engine.PollInterval},
		{"HERALD_BACKOFF_BASE", &cfg.Engine.BackoffBase},
		{"HERALD_EXEC_TIMEOUT", &cfg.Engine.ExecTimeout},
		{"HERALD_SHUTDOWN_TIMEOUT", &cfg.Engine.ShutdownTimeout},
		{"HERALD_RETENTION_AGE", &cfg.Engine.RetentionAge},
		{"HERALD_RETENTION_INTERVAL", &cfg.Engine.RetentionInterval},
	}
	for _, d := range durations {
		raw, ok := lookup(d.key)
		if !ok {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	if raw, ok := lookup("HERALD_AUDIT"); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("HERALD_AUDIT: %w", err)
		}
		cfg.Audit = b
	}

	if raw, ok := lookup("HERALD_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("HERALD_MAX_RETRIES: %w", err)
		}
		cfg.Engine.MaxRetries = n
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	switch c.Store {
	case storeMemory:
	case storePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case storeSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case storeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, postgres, sqlite or redis)", c.Store)
	}

	if c.HassURL != "" && c.HassToken == "" {
		return fmt.Errorf("HASS_TOKEN is required when HASS_URL is set")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("HERALD_MAX_RETRIES must be >= 0")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("HERALD_POLL_INTERVAL must be positive")
	}
	if _, err := backoff.FromName(c.BackoffName, c.Engine.BackoffBase); err != nil {
		return err
	}
	return nil
}
