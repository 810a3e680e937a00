package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/browser"
	"github.com/chemview-archive/harvester/internal/clock/system"
	"github.com/chemview-archive/harvester/internal/config"
	"github.com/chemview-archive/harvester/internal/driver/chemview"
	"github.com/chemview-archive/harvester/internal/harvest"
	"github.com/chemview-archive/harvester/internal/metrics"
	"github.com/chemview-archive/harvester/internal/monitor"
	"github.com/chemview-archive/harvester/internal/plan"
	"github.com/chemview-archive/harvester/internal/state"
)

// newHarvestCmd creates the 'harvest' subcommand, the main crawl loop.
func newHarvestCmd() *cobra.Command {
	var (
		inputPath   string
		kind        string
		startRow    int
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run the resumable harvest loop over the export file",
		Long: `Reads the tabular export row by row, decides per artifact type whether a
fetch is still needed, drives the report-page capture, and records every
outcome in the harvest log. Drop the configured stop file to end the run
gracefully; re-running resumes where the log left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if inputPath != "" {
				cfg.Input.Path = inputPath
			}
			if kind != "" {
				cfg.Harvest.Kind = kind
			}
			if cmd.Flags().Changed("start-row") {
				cfg.Harvest.StartRow = startRow
			}
			if cmd.Flags().Changed("max-attempts") {
				cfg.Harvest.MaxAttempts = maxAttempts
			}
			return runHarvest(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "tabular export file driving the crawl")
	cmd.Flags().StringVar(&kind, "kind", "", "harvest kind (section5, substantial_risk, new_chemical_notice, snur)")
	cmd.Flags().IntVar(&startRow, "start-row", 0, "skip non-blank rows before this 1-based row number")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "stop after this many dispatched attempts (0 = unlimited)")

	return cmd
}

func runHarvest(cmd *cobra.Command, cfg config.Config) error {
	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	clk := system.New()

	policy, err := harvest.PolicyFor(cfg.Harvest.Kind)
	if err != nil {
		return err
	}

	if cfg.Input.Path == "" {
		return exitError{code: harvest.ExitInputError, err: errors.New("no input file configured (set --input or input.path)")}
	}

	store, err := state.Open(cfg.State.Path, clk)
	if err != nil {
		return exitError{code: harvest.ExitStoreError, err: err}
	}
	defer func() { _ = store.Close() }()

	rows, err := harvest.OpenCSV(cfg.Input.Path)
	if err != nil {
		code := harvest.ExitInputError
		if errors.Is(err, harvest.ErrBadHeader) {
			code = harvest.ExitHeaderError
		}
		return exitError{code: code, err: err}
	}
	defer func() { _ = rows.Close() }()

	accumulator, err := plan.NewAccumulator(filepath.Base(cfg.Archive.Root), cfg.Plan.OutDir, cfg.Plan.BatchSize, clk, logger)
	if err != nil {
		return err
	}

	session := browser.TryNew(browser.Config{
		Headless:     cfg.Browser.Headless,
		NavTimeout:   cfg.NavTimeout(),
		ExtraHeaders: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	}, logger)

	runner, err := harvest.NewRunner(harvest.Options{
		Store:         store,
		Plan:          accumulator,
		Driver:        chemview.New(logger, cfg.NavTimeout()),
		Rows:          rows,
		Session:       session,
		Clock:         clk,
		Logger:        logger,
		Policy:        policy,
		ArchiveRoot:   cfg.Archive.Root,
		DebugDir:      cfg.Archive.DebugDir,
		EntityParam:   cfg.Input.EntityParam,
		Headless:      cfg.Browser.Headless,
		StopFile:      cfg.Harvest.StopFile,
		StartRow:      cfg.Harvest.StartRow,
		MaxAttempts:   cfg.Harvest.MaxAttempts,
		RetryInterval: cfg.RetryInterval(),
	})
	if err != nil {
		return err
	}

	if cfg.Monitor.Addr != "" {
		mon := monitor.New(cfg.Monitor.Addr, runner.Progress(), logger)
		mon.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mon.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("harvest finished",
		zap.String("run_id", summary.RunID),
		zap.Int("rows_read", summary.RowsRead),
		zap.Int("attempts", summary.Attempts))
	return nil
}
