// Package config loads the console configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its config file
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server struct {
		Port      int    `yaml:"port"`
		Host      string `yaml:"host"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Backend struct {
		BaseURL        string `yaml:"base_url"`
		Prefix         string `yaml:"prefix"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"backend"`

	Polling struct {
		IntervalMS int `yaml:"interval_ms"`
	} `yaml:"polling"`

	Validation struct {
		DebounceMS int `yaml:"debounce_ms"`
	} `yaml:"validation"`

	Notifications struct {
		TTLMS int `yaml:"ttl_ms"`
	} `yaml:"notifications"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Events struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"events"`

	Storage struct {
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Archive struct {
		Enabled   bool   `yaml:"enabled"`
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queue_size"`
		Format    string `yaml:"format"`
	} `yaml:"archive"`

	GoogleDrive struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Sessions struct {
		Store      string `yaml:"store"`
		CookieName string `yaml:"cookie_name"`
		TTLHours   int    `yaml:"ttl_hours"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"sessions"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Log struct {
		Level      string `yaml:"level"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var c Config

	c.Server.Host = "0.0.0.0"
	c.Server.Port = 3000
	c.Server.StaticDir = "web"

	c.Backend.BaseURL = "http://localhost:8000"
	c.Backend.Prefix = "/api/v1"
	c.Backend.TimeoutSeconds = 0

	c.Polling.IntervalMS = 2000
	c.Validation.DebounceMS = 1000
	c.Notifications.TTLMS = 5000
	c.Limits.MaxFileSizeMB = 2048
	c.Events.BufferSize = 500

	c.Storage.OutputDir = "outputs"
	c.Storage.Database = "transcripts.db"

	c.Archive.Enabled = true
	c.Archive.Workers = 2
	c.Archive.QueueSize = 100
	c.Archive.Format = "txt"

	c.GoogleDrive.CredentialsFile = "credentials.json"
	c.GoogleDrive.TokenFile = "token.json"
	c.GoogleDrive.FolderName = "Transcripts"

	c.Sessions.Store = "memory"
	c.Sessions.CookieName = "transcriber_session"
	c.Sessions.TTLHours = 24
	c.Sessions.Redis.Addr = "localhost:6379"

	c.Cleanup.IntervalMinutes = 60
	c.Cleanup.MaxAgeHours = 24 * 30

	c.RateLimit.RequestsPerSecond = 20
	c.RateLimit.Burst = 40

	c.Log.Level = "info"
	c.Log.BufferSize = 1000

	return &c
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case strings.TrimSpace(c.Backend.BaseURL) == "":
		return errors.New("backend.base_url is required")
	case c.Polling.IntervalMS <= 0:
		return errors.New("polling.interval_ms must be positive")
	case c.Validation.DebounceMS < 0:
		return errors.New("validation.debounce_ms must not be negative")
	case c.Archive.Enabled && c.Archive.Workers <= 0:
		return errors.New("archive.workers must be positive")
	case c.Limits.MaxFileSizeMB <= 0:
		return errors.New("limits.max_file_size_mb must be positive")
	case c.Events.BufferSize < 0:
		return errors.New("events.buffer_size must not be negative")
	case c.Cleanup.IntervalMinutes <= 0:
		return errors.New("cleanup.interval_minutes must be positive")
	case c.Cleanup.MaxAgeHours <= 0:
		return errors.New("cleanup.max_age_hours must be positive")
	}

	switch c.Sessions.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("sessions.store %q: want memory or redis", c.Sessions.Store)
	}
	return nil
}

// Addr is the listen address of the console server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PollInterval is the spacing between status checks
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMS) * time.Millisecond
}

// DebounceDelay is the quiet window before URL auto validation
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Validation.DebounceMS) * time.Millisecond
}

// NotifyTTL is how long a notification stays visible
func (c *Config) NotifyTTL() time.Duration {
	return time.Duration(c.Notifications.TTLMS) * time.Millisecond
}

// BackendTimeout bounds a single backend request; zero means none
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// MaxFileSize is the upload ceiling in bytes
func (c *Config) MaxFileSize() int64 {
	return int64(c.Limits.MaxFileSizeMB) << 20
}

// SessionTTL is how long an idle session record is kept
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTLHours) * time.Hour
}
