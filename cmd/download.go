package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/download"
	"github.com/chemview-archive/harvester/internal/metrics"
)

// newDownloadCmd creates the 'download' subcommand, which replays the plan
// files a harvest run produced.
func newDownloadCmd() *cobra.Command {
	var (
		planPath string
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the supporting files queued in download plans",
		Long: `Replays download plans produced by a harvest run: recreates each plan's
folder tree next to the archive root and fetches every queued URL. Files
already on disk are skipped, so an interrupted pass can simply be re-run.
With --plan one file is replayed; otherwise every plan in the configured
plan directory is processed, oldest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			metrics.Init()

			dl, err := download.New(download.Config{
				DestRoot: filepath.Dir(cfg.Archive.Root),
				Delay:    delay,
				Timeout:  cfg.NavTimeout(),
				StopFile: cfg.Harvest.StopFile,
			}, logger)
			if err != nil {
				return err
			}

			plans := []string{planPath}
			if planPath == "" {
				plans, err = download.ListPlans(cfg.Plan.OutDir)
				if err != nil {
					return err
				}
				if len(plans) == 0 {
					logger.Info("no download plans found", zap.String("dir", cfg.Plan.OutDir))
					return nil
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			total := download.Stats{}
			for _, p := range plans {
				stats, err := dl.RunFile(ctx, p)
				total.Downloaded += stats.Downloaded
				total.Skipped += stats.Skipped
				total.Failed += stats.Failed
				if err != nil {
					logger.Warn("plan replay interrupted", zap.String("plan", p), zap.Error(err))
					break
				}
			}

			logger.Info("download pass finished",
				zap.Int("plans", len(plans)),
				zap.Int("downloaded", total.Downloaded),
				zap.Int("skipped", total.Skipped),
				zap.Int("failed", total.Failed))
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "replay a single plan file instead of the whole plan directory")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "politeness delay between requests to the same host")

	return cmd
}
