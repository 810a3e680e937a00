// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/config"
	"github.com/chemview-archive/harvester/internal/harvest"
	"github.com/chemview-archive/harvester/internal/logging"
)

var cfgFile string

// exitError carries the process exit code for fatal startup failures.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Resumable document harvester for tabular exports",
		Long: `harvester walks a tabular export of chemical records, captures each
record's report page with a headless browser, and accumulates discovered
supporting-file URLs into batched download plans. Progress is persisted per
(entity, artifact type) in an embedded database so a multi-day crawl can be
interrupted and resumed without re-fetching completed work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harvester.yaml if present)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// loadConfig resolves the config file (explicit flag, then ./harvester.yaml).
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("harvester.yaml"); err == nil {
			path = "harvester.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Development: cfg.Logging.Development,
		FilePath:    cfg.Logging.FilePath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return harvest.ExitInputError
	}
	return harvest.ExitOK
}
