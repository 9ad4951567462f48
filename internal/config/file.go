package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL       string   `yaml:"database_url"`
	RedisURL          string   `yaml:"redis_url"`
	ServerPort        string   `yaml:"server_port"`
	UserAgent         string   `yaml:"user_agent"`
	Timeout           string   `yaml:"timeout"`
	LogLevel          string   `yaml:"log_level"`
	WorkerConcurrency int      `yaml:"worker_concurrency"`
	MaxAttempts       int      `yaml:"max_attempts"`
	RetryBaseDelay    string   `yaml:"retry_base_delay"`
	ExcludeLive       []string `yaml:"exclude_live"`
	ExcludeVOD        []string `yaml:"exclude_vod"`
	ExcludeSeries     []string `yaml:"exclude_series"`
	SyncSchedule      string   `yaml:"sync_schedule"`
}

// LoadFromFile loads config from a YAML file. database_url and redis_url are
// required; everything else falls back to the same defaults as Load.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	c := defaults()
	c.DatabaseURL = f.DatabaseURL
	c.RedisURL = f.RedisURL
	if f.ServerPort != "" {
		c.ServerPort = f.ServerPort
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			c.Timeout = d
		}
	}
	if f.WorkerConcurrency > 0 {
		c.WorkerConcurrency = f.WorkerConcurrency
	}
	if f.MaxAttempts > 0 {
		c.MaxAttempts = f.MaxAttempts
	}
	if f.RetryBaseDelay != "" {
		if d, err := time.ParseDuration(f.RetryBaseDelay); err == nil {
			c.RetryBaseDelay = d
		}
	}
	if f.ExcludeLive != nil {
		c.ExcludeLive = f.ExcludeLive
	}
	if f.ExcludeVOD != nil {
		c.ExcludeVOD = f.ExcludeVOD
	}
	if f.ExcludeSeries != nil {
		c.ExcludeSeries = f.ExcludeSeries
	}
	if f.SyncSchedule != "" {
		c.SyncSchedule = f.SyncSchedule
	}
	return c, c.validate()
}
