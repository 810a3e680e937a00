// Package config loads and validates harvest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all settings for one harvest run, loaded via Viper.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Archive ArchiveConfig `mapstructure:"archive"`
	State   StateConfig   `mapstructure:"state"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Plan    PlanConfig    `mapstructure:"plan"`
	Browser BrowserConfig `mapstructure:"browser"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig locates the tabular export that drives the crawl.
type InputConfig struct {
	Path string `mapstructure:"path"`
	// EntityParam is the query parameter carrying the entity id; rows whose
	// URL is missing it get it injected from the id column.
	EntityParam string `mapstructure:"entity_param"`
}

// ArchiveConfig sets where captured documents land.
type ArchiveConfig struct {
	Root     string `mapstructure:"root"`
	DebugDir string `mapstructure:"debug_dir"`
}

// StateConfig locates the embedded harvest-log database.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// HarvestConfig governs the row loop.
type HarvestConfig struct {
	Kind               string  `mapstructure:"kind"`
	MaxAttempts        int     `mapstructure:"max_attempts"`
	StartRow           int     `mapstructure:"start_row"`
	StopFile           string  `mapstructure:"stop_file"`
	RetryIntervalHours float64 `mapstructure:"retry_interval_hours"`
}

// PlanConfig governs download plan batching.
type PlanConfig struct {
	OutDir    string `mapstructure:"out_dir"`
	BatchSize int    `mapstructure:"batch_size"`
}

// BrowserConfig configures the shared headless session.
type BrowserConfig struct {
	Headless      bool `mapstructure:"headless"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// MonitorConfig controls the optional progress endpoint.
type MonitorConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the rolling log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	FilePath    string `mapstructure:"file_path"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.entity_param", "ch")
	v.SetDefault("archive.root", "chemview_archive")
	v.SetDefault("archive.debug_dir", "debug_out")
	v.SetDefault("state.path", "chemview_harvest.db")
	v.SetDefault("harvest.kind", "section5")
	v.SetDefault("harvest.max_attempts", 0)
	v.SetDefault("harvest.start_row", 0)
	v.SetDefault("harvest.stop_file", "harvest.stop")
	v.SetDefault("harvest.retry_interval_hours", 12)
	v.SetDefault("plan.out_dir", "downloadsToDo")
	v.SetDefault("plan.batch_size", 25)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file_path", "harvest.log")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Archive.Root == "" {
		return fmt.Errorf("archive.root must be set")
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path must be set")
	}
	if c.Plan.BatchSize <= 0 {
		return fmt.Errorf("plan.batch_size must be > 0")
	}
	if c.Harvest.RetryIntervalHours < 0 {
		return fmt.Errorf("harvest.retry_interval_hours must be >= 0")
	}
	if c.Harvest.MaxAttempts < 0 {
		return fmt.Errorf("harvest.max_attempts must be >= 0")
	}
	if c.Harvest.StartRow < 0 {
		return fmt.Errorf("harvest.start_row must be >= 0")
	}
	return nil
}

// RetryInterval converts the configured cool-down hours into a duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.Harvest.RetryIntervalHours * float64(time.Hour))
}

// NavTimeout converts the browser navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
