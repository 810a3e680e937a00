package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Plan.BatchSize != 25 {
		t.Errorf("plan.batch_size = %d, want 25", cfg.Plan.BatchSize)
	}
	if cfg.Harvest.StopFile != "harvest.stop" {
		t.Errorf("harvest.stop_file = %q, want harvest.stop", cfg.Harvest.StopFile)
	}
	if got, want := cfg.RetryInterval(), 12*time.Hour; got != want {
		t.Errorf("RetryInterval() = %v, want %v", got, want)
	}
	if !cfg.Browser.Headless {
		t.Error("browser.headless should default to true")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
input:
  path: chemview_export.csv
  entity_param: ch
archive:
  root: /data/chemview_archive
  debug_dir: /data/debug
state:
  path: /data/chemview_harvest.db
harvest:
  kind: substantial_risk
  max_attempts: 100
  start_row: 250
  stop_file: /tmp/harvest.stop
  retry_interval_hours: 6
plan:
  out_dir: /data/downloadsToDo
  batch_size: 10
browser:
  headless: false
  nav_timeout_seconds: 30
monitor:
  addr: 127.0.0.1:9190
`
	if err := os.WriteFile(path, []byte(strings.TrimSpace(configYAML)), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Harvest.Kind != "substantial_risk" {
		t.Errorf("harvest.kind = %q", cfg.Harvest.Kind)
	}
	if cfg.Harvest.StartRow != 250 {
		t.Errorf("harvest.start_row = %d", cfg.Harvest.StartRow)
	}
	if cfg.Plan.BatchSize != 10 {
		t.Errorf("plan.batch_size = %d", cfg.Plan.BatchSize)
	}
	if got, want := cfg.RetryInterval(), 6*time.Hour; got != want {
		t.Errorf("RetryInterval() = %v, want %v", got, want)
	}
	if cfg.Monitor.Addr != "127.0.0.1:9190" {
		t.Errorf("monitor.addr = %q", cfg.Monitor.Addr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty archive root", func(c *Config) { c.Archive.Root = "" }},
		{"empty state path", func(c *Config) { c.State.Path = "" }},
		{"zero batch size", func(c *Config) { c.Plan.BatchSize = 0 }},
		{"negative retry interval", func(c *Config) { c.Harvest.RetryIntervalHours = -1 }},
		{"negative start row", func(c *Config) { c.Harvest.StartRow = -5 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}
