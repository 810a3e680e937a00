package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chemview-archive/harvester/internal/clock/system"
	"github.com/chemview-archive/harvester/internal/harvest"
	"github.com/chemview-archive/harvester/internal/state"
)

// newResetCmd creates the 'reset' subcommand, which wipes the harvest log so
// the next run starts from scratch.
func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record in the harvest log",
		Long: `Deletes all (entity, artifact type) records from the harvest log. The next
harvest run will re-fetch everything. Downloaded files on disk are not
touched. Requires --yes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset wipes the harvest log; pass --yes to confirm")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := state.Open(cfg.State.Path, system.New())
			if err != nil {
				return exitError{code: harvest.ExitStoreError, err: err}
			}
			defer func() { _ = store.Close() }()

			n, err := store.Clear(cmd.Context())
			if err != nil {
				return exitError{code: harvest.ExitStoreError, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d harvest log records\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm wiping the harvest log")

	return cmd
}
