package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Feed     Feed     `yaml:"feed"`
	Sync     Sync     `yaml:"sync"`
	Keywords Keywords `yaml:"keywords"`
	Schedule Schedule `yaml:"schedule"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Feed configures the remote item feed.
type Feed struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent"`
}

// Sync configures backfill and catch-up runs.
type Sync struct {
	ChunkSize     int   `yaml:"chunk_size"`
	Concurrency   int   `yaml:"concurrency"`
	BootstrapDays int   `yaml:"bootstrap_days"`
	SafetyMargin  int64 `yaml:"safety_margin"`
	BudgetSeconds int   `yaml:"budget_seconds"`
}

// Keywords configures the scoring oracle and aggregation.
type Keywords struct {
	OracleURL       string   `yaml:"oracle_url"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	MaxKeywords     int      `yaml:"max_keywords"`
	NGramMax        int      `yaml:"n_gram_max"`
	Language        string   `yaml:"language"`
	DedupThreshold  float64  `yaml:"dedup_threshold"`
	TopN            int      `yaml:"top_n"`
	MaxTextChars    int      `yaml:"max_text_chars"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	Blacklist       []string `yaml:"blacklist"`
}

type Schedule struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for hntrends.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "hntrends")
}

// DataDir returns the XDG data directory for hntrends.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "hntrends")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/hntrends/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'hntrends init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Feed: Feed{
			BaseURL:           "https://hacker-news.firebaseio.com/v0",
			TimeoutSeconds:    10,
			RequestsPerSecond: 50,
			UserAgent:         "hntrends/1.0 (keyword trends)",
		},
		Sync: Sync{
			ChunkSize:     500,
			Concurrency:   20,
			BootstrapDays: 7,
			SafetyMargin:  1000,
		},
		Keywords: Keywords{
			OracleURL:       "http://localhost:8000",
			TimeoutSeconds:  60,
			MaxKeywords:     50,
			NGramMax:        3,
			Language:        "en",
			DedupThreshold:  0.9,
			TopN:            75,
			MaxTextChars:    1_000_000,
			CacheTTLSeconds: 60,
		},
		Schedule: Schedule{IntervalMinutes: 15},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk_size must be positive, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be positive, got %d", c.Sync.Concurrency)
	}
	if c.Sync.SafetyMargin < 0 {
		return fmt.Errorf("sync.safety_margin must not be negative, got %d", c.Sync.SafetyMargin)
	}
	if c.Keywords.TopN <= 0 {
		return fmt.Errorf("keywords.top_n must be positive, got %d", c.Keywords.TopN)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// Budget returns the wall-clock budget for one sync invocation; zero means unbounded.
func (s Sync) Budget() time.Duration {
	return time.Duration(s.BudgetSeconds) * time.Second
}

// CacheTTL returns how long override lookups may be served from memory.
func (k Keywords) CacheTTL() time.Duration {
	return time.Duration(k.CacheTTLSeconds) * time.Second
}

// Interval returns the scheduler tick interval.
func (s Schedule) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
