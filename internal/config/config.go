package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "1m".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if dur, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(dur)
		return nil
	}
	secs, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration. Loaded once at startup and
// immutable afterwards.
type Config struct {
	DataSource struct {
		BaseURL      string   `yaml:"base_url"`
		APIKey       string   `yaml:"api_key"`
		Timeout      Duration `yaml:"timeout"`
		MaxRetries   int      `yaml:"max_retries"`
		RetryDelay   Duration `yaml:"retry_delay"`
		RequestDelay Duration `yaml:"request_delay"`
	} `yaml:"data_source"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Scheduler struct {
		Tick  Duration `yaml:"tick"`
		Grace Duration `yaml:"grace"`
	} `yaml:"scheduler"`
	Timeouts struct {
		Sync       Duration `yaml:"sync"`
		Indicators Duration `yaml:"indicators"`
		Health     Duration `yaml:"health"`
		Default    Duration `yaml:"default"`
	} `yaml:"timeouts"`
	Health struct {
		MinFreeDiskMB uint64 `yaml:"min_free_disk_mb"`
		MaxLogDirMB   uint64 `yaml:"max_log_dir_mb"`
		LogDir        string `yaml:"log_dir"`
	} `yaml:"health"`
	Indicators struct {
		RecomputeDays int `yaml:"recompute_days"`
	} `yaml:"indicators"`
	Calendar struct {
		Holidays []string `yaml:"holidays"`
	} `yaml:"calendar"`
	Universe struct {
		Seed    []string `yaml:"seed"`
		Indices []string `yaml:"indices"`
	} `yaml:"universe"`
}

// Load reads config from a YAML file, overlays a .env file if present,
// then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env overlay; absence is fine.
	_ = godotenv.Load()

	// Environment variable overrides
	if v := os.Getenv("DATA_SOURCE_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_SOURCE_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DataSource.MaxRetries = n
		}
	}
	if v := os.Getenv("RETRY_DELAY"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.DataSource.RetryDelay = Duration(dur)
		}
	}
	if v := os.Getenv("REQUEST_DELAY"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.DataSource.RequestDelay = Duration(dur)
		}
	}
	if v := os.Getenv("SCHEDULER_TICK"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.Tick = Duration(dur)
		}
	}

	// Defaults
	if cfg.DataSource.Timeout == 0 {
		cfg.DataSource.Timeout = Duration(30 * time.Second)
	}
	if cfg.DataSource.MaxRetries == 0 {
		cfg.DataSource.MaxRetries = 3
	}
	if cfg.DataSource.RetryDelay == 0 {
		cfg.DataSource.RetryDelay = Duration(time.Second)
	}
	if cfg.DataSource.RequestDelay == 0 {
		cfg.DataSource.RequestDelay = Duration(time.Second)
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/stocksentry.db"
	}
	if cfg.Scheduler.Tick == 0 {
		cfg.Scheduler.Tick = Duration(30 * time.Second)
	}
	if cfg.Scheduler.Grace == 0 {
		cfg.Scheduler.Grace = Duration(30 * time.Second)
	}
	if cfg.Timeouts.Sync == 0 {
		cfg.Timeouts.Sync = Duration(30 * time.Minute)
	}
	if cfg.Timeouts.Indicators == 0 {
		cfg.Timeouts.Indicators = Duration(15 * time.Minute)
	}
	if cfg.Timeouts.Health == 0 {
		cfg.Timeouts.Health = Duration(2 * time.Minute)
	}
	if cfg.Timeouts.Default == 0 {
		cfg.Timeouts.Default = Duration(10 * time.Minute)
	}
	if cfg.Health.MinFreeDiskMB == 0 {
		cfg.Health.MinFreeDiskMB = 500
	}
	if cfg.Health.MaxLogDirMB == 0 {
		cfg.Health.MaxLogDirMB = 100
	}
	if cfg.Health.LogDir == "" {
		cfg.Health.LogDir = "logs"
	}
	if cfg.Indicators.RecomputeDays == 0 {
		cfg.Indicators.RecomputeDays = 5
	}
	if len(cfg.Universe.Indices) == 0 {
		cfg.Universe.Indices = []string{"000001", "399001", "399006"}
	}

	return cfg, nil
}

// Validate checks the loaded configuration once at startup.
func (c *Config) Validate() error {
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if c.DataSource.MaxRetries < 1 {
		return fmt.Errorf("data_source.max_retries must be at least 1")
	}
	if c.DataSource.Timeout.Std() <= 0 {
		return fmt.Errorf("data_source.timeout must be positive")
	}
	if tick := c.Scheduler.Tick.Std(); tick <= 0 || tick > time.Minute {
		return fmt.Errorf("scheduler.tick must be within (0, 60s]")
	}
	if c.Scheduler.Grace.Std() <= 0 {
		return fmt.Errorf("scheduler.grace must be positive")
	}
	if c.Indicators.RecomputeDays < 1 {
		return fmt.Errorf("indicators.recompute_days must be at least 1")
	}
	return nil
}
