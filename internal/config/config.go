// Package config loads the manager configuration from an optional YAML
// file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the process configuration. Loaded once at startup and
// treated as immutable.
type Config struct {
	Host   string
	Port   string
	DBPath string

	ServiceHost   string
	TokenEndpoint string
	APIKey        string

	RefreshInterval  time.Duration
	RefreshThreshold time.Duration
	NotificationCap  int
}

// fileConfig is the YAML document shape. Durations are strings in
// time.ParseDuration form.
type fileConfig struct {
	Host   string `yaml:"host"`
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	ServiceHost   string `yaml:"service_host"`
	TokenEndpoint string `yaml:"token_endpoint"`
	APIKey        string `yaml:"api_key"`

	RefreshInterval  string `yaml:"refresh_interval"`
	RefreshThreshold string `yaml:"refresh_threshold"`
	NotificationCap  int    `yaml:"notification_cap"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             "8087",
		DBPath:           "warpsurge.db",
		ServiceHost:      "app.warp.dev",
		TokenEndpoint:    "https://securetoken.googleapis.com/v1/token",
		RefreshInterval:  5 * time.Minute,
		RefreshThreshold: 5 * time.Minute,
		NotificationCap:  100,
	}
}

// Load reads the YAML file at path when it exists, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			var file fileConfig
			if err := yaml.Unmarshal(data, &file); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
			applyFile(&cfg, file)
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if dbPath := os.Getenv("WARPSURGE_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if apiKey := os.Getenv("WARPSURGE_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	return cfg, nil
}

func applyFile(cfg *Config, file fileConfig) {
	if file.Host != "" {
		cfg.Host = file.Host
	}
	if file.Port != "" {
		cfg.Port = file.Port
	}
	if file.DBPath != "" {
		cfg.DBPath = file.DBPath
	}
	if file.ServiceHost != "" {
		cfg.ServiceHost = file.ServiceHost
	}
	if file.TokenEndpoint != "" {
		cfg.TokenEndpoint = file.TokenEndpoint
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	cfg.RefreshInterval = parseDuration(file.RefreshInterval, cfg.RefreshInterval)
	cfg.RefreshThreshold = parseDuration(file.RefreshThreshold, cfg.RefreshThreshold)
	if file.NotificationCap > 0 {
		cfg.NotificationCap = file.NotificationCap
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw = strings.TrimSpace(raw); raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
