package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL             string `yaml:"ttl"`
		ValidateOptions bool   `yaml:"validate_options"`
		PersistTimeout  string `yaml:"persist_timeout"`
	} `yaml:"quiz"`
	Proctoring struct {
		RequireFullScreen bool   `yaml:"require_fullscreen"`
		ConfirmTimeout    string `yaml:"confirm_timeout"`
	} `yaml:"proctoring"`
	Progress struct {
		// Driver is one of memory, sqlite or postgres.
		Driver        string `yaml:"driver"`
		RetryInterval string `yaml:"retry_interval"`
	} `yaml:"progress"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ProgressDriver resolves the configured progress backend, defaulting to
// postgres when a database is configured and memory otherwise.
func (c Config) ProgressDriver() string {
	if c.Progress.Driver != "" {
		return c.Progress.Driver
	}
	if c.Postgres.URL != "" {
		return "postgres"
	}
	return "memory"
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
