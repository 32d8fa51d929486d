package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	// DataDir holds the database, logs, event log and per-day post files.
	// Empty means the directory containing the config file.
	DataDir string `yaml:"data_dir,omitempty"`

	Bluesky  BlueskyConfig  `yaml:"bluesky"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	Classify ClassifyConfig `yaml:"classify"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BlueskyConfig controls post search.
type BlueskyConfig struct {
	BaseURL     string `yaml:"base_url"` // public AppView
	PDSURL      string `yaml:"pds_url"`  // used after login
	Handle      string `yaml:"handle,omitempty"`
	AppPassword string `yaml:"app_password,omitempty"`
	PageLimit   int    `yaml:"page_limit"`
	Delay       string `yaml:"delay"` // minimum spacing between API calls
	MaxPages    int    `yaml:"max_pages"`
	Timeout     string `yaml:"timeout"`
}

// OllamaConfig points at the local text-generation endpoint.
type OllamaConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// ClassifyConfig selects the classifier.
type ClassifyConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "dictionary"
	Concurrency    int    `yaml:"concurrency"`
	KnownGamesFile string `yaml:"known_games_file,omitempty"`
}

// ExportConfig controls CSV output.
type ExportConfig struct {
	Dir string `yaml:"dir,omitempty"` // default <data_dir>/exports
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultDelay          = 15 * time.Second
	defaultBlueskyTimeout = 30 * time.Second
	defaultOllamaTimeout  = 120 * time.Second
)

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Bluesky: BlueskyConfig{
			BaseURL:   "https://api.bsky.app",
			PDSURL:    "https://bsky.social",
			PageLimit: 100,
			Delay:     defaultDelay.String(),
			MaxPages:  50,
			Timeout:   defaultBlueskyTimeout.String(),
		},
		Ollama: OllamaConfig{
			Endpoint:    "http://localhost:11434",
			Model:       "mistral",
			Temperature: 0.3,
			Timeout:     defaultOllamaTimeout.String(),
		},
		Classify: ClassifyConfig{
			Provider:    "ollama",
			Concurrency: 1, // one local model, one request at a time
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// HomeDir returns $GAMEPULSE_HOME or ~/.gamepulse.
func HomeDir() string {
	if dir := os.Getenv("GAMEPULSE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gamepulse")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// Load reads config from path, or returns defaults when the file does not
// exist. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	cfg.AutoPopulateFromEnv()
	cfg.fillZeroes()
	return cfg, nil
}

// Save writes config to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // may hold an app password
}

// AutoPopulateFromEnv applies environment overrides.
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("BSKY_HANDLE"); v != "" {
		c.Bluesky.Handle = v
	}
	if v := os.Getenv("BSKY_APP_PASSWORD"); v != "" {
		c.Bluesky.AppPassword = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.Endpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv("GAMEPULSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// fillZeroes restores defaults for fields a partial config file left empty.
func (c *Config) fillZeroes() {
	d := DefaultConfig()
	if c.Bluesky.BaseURL == "" {
		c.Bluesky.BaseURL = d.Bluesky.BaseURL
	}
	if c.Bluesky.PDSURL == "" {
		c.Bluesky.PDSURL = d.Bluesky.PDSURL
	}
	if c.Bluesky.PageLimit <= 0 || c.Bluesky.PageLimit > 100 {
		c.Bluesky.PageLimit = d.Bluesky.PageLimit
	}
	if c.Ollama.Endpoint == "" {
		c.Ollama.Endpoint = d.Ollama.Endpoint
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = d.Ollama.Model
	}
	if c.Classify.Provider == "" {
		c.Classify.Provider = d.Classify.Provider
	}
	if c.Classify.Concurrency <= 0 {
		c.Classify.Concurrency = d.Classify.Concurrency
	}
}

// SearchDelay returns the minimum spacing between Bluesky calls.
func (c *Config) SearchDelay() time.Duration {
	return parseDuration(c.Bluesky.Delay, defaultDelay)
}

// BlueskyTimeout returns the HTTP timeout for Bluesky calls.
func (c *Config) BlueskyTimeout() time.Duration {
	return parseDuration(c.Bluesky.Timeout, defaultBlueskyTimeout)
}

// OllamaTimeout returns the HTTP timeout for generation calls.
func (c *Config) OllamaTimeout() time.Duration {
	return parseDuration(c.Ollama.Timeout, defaultOllamaTimeout)
}

// DBPath returns the path to gamepulse.db.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "gamepulse.db")
}

// EventLogPath returns the path to gamepulse.events.jsonl.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "gamepulse.events.jsonl")
}

// LogDir returns the log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// PostsDir returns where per-day JSON post files are written.
func (c *Config) PostsDir() string {
	return filepath.Join(c.DataDir, "posts")
}

// ExportDir returns where CSV reports are written.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	return filepath.Join(c.DataDir, "exports")
}

// parseDuration accepts Go duration strings; a bare number means seconds.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	var secs int
	if _, err := fmt.Sscanf(s, "%d", &secs); err == nil && secs >= 0 && fmt.Sprint(secs) == s {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
