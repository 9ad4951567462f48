package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// ErrMissingRedisURL is returned when no Redis URL is configured.
var ErrMissingRedisURL = errors.New("REDIS_URL is required")

// Config holds application configuration (store, queue, fetcher, worker).
type Config struct {
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	ServerPort  string        `yaml:"server_port"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"-"` // single catalog/credential call ceiling
	LogLevel    string        `yaml:"log_level"`

	// Worker pool and retry policy (applied by the queue, not in-code loops).
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBaseDelay    time.Duration `yaml:"-"`

	// Per-kind category denylists: normalized category ids excluded from sync.
	ExcludeLive   []string `yaml:"exclude_live"`
	ExcludeVOD    []string `yaml:"exclude_vod"`
	ExcludeSeries []string `yaml:"exclude_series"`

	// Optional cron spec; when set, a full sync of every Active provider is
	// enqueued on each tick (e.g. "0 4 * * *").
	SyncSchedule string `yaml:"sync_schedule"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries .env.local and .env from the current
// directory and the executable's directory first (godotenv never overrides
// variables that are already set).
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := defaults()
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisURL = os.Getenv("REDIS_URL")
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.ServerPort = v
	}
	if v := os.Getenv("FETCHER_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if d, ok := envDuration("FETCHER_TIMEOUT"); ok {
		c.Timeout = d
	}
	if n, ok := envInt("WORKER_CONCURRENCY"); ok && n > 0 {
		c.WorkerConcurrency = n
	}
	if n, ok := envInt("JOB_MAX_ATTEMPTS"); ok && n > 0 {
		c.MaxAttempts = n
	}
	if d, ok := envDuration("JOB_RETRY_BASE_DELAY"); ok {
		c.RetryBaseDelay = d
	}
	if v, ok := os.LookupEnv("EXCLUDE_LIVE_CATEGORIES"); ok {
		c.ExcludeLive = splitList(v)
	}
	if v, ok := os.LookupEnv("EXCLUDE_VOD_CATEGORIES"); ok {
		c.ExcludeVOD = splitList(v)
	}
	if v, ok := os.LookupEnv("EXCLUDE_SERIES_CATEGORIES"); ok {
		c.ExcludeSeries = splitList(v)
	}
	if v := os.Getenv("SYNC_SCHEDULE"); v != "" {
		c.SyncSchedule = v
	}
	return c, c.validate()
}

// defaults returns a Config with every optional knob at its default.
// The denylist defaults mirror the stock exclusion configuration.
func defaults() *Config {
	return &Config{
		ServerPort:        "8080",
		UserAgent:         "StreamVault/1.0",
		Timeout:           20 * time.Second,
		LogLevel:          "info",
		WorkerConcurrency: 2,
		MaxAttempts:       3,
		RetryBaseDelay:    5 * time.Second,
		ExcludeLive:       []string{"81"},
		ExcludeVOD:        []string{"35"},
		ExcludeSeries:     []string{"169"},
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.RedisURL == "" {
		return ErrMissingRedisURL
	}
	return nil
}

// loadEnvFiles loads .env.local and .env via godotenv.
func loadEnvFiles() {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			_ = godotenv.Load(filepath.Join(dir, name))
		}
	}
}

func envDuration(key string) (time.Duration, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries. An explicitly empty variable yields an empty denylist.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
