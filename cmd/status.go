package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chemview-archive/harvester/internal/clock/system"
	"github.com/chemview-archive/harvester/internal/harvest"
	"github.com/chemview-archive/harvester/internal/state"
)

// newStatusCmd creates the 'status' subcommand, a read-only report over the
// harvest log.
func newStatusCmd() *cobra.Command {
	var sinceHours float64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize harvest progress from the log database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			clk := system.New()
			store, err := state.Open(cfg.State.Path, clk)
			if err != nil {
				return exitError{code: harvest.ExitStoreError, err: err}
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			summaries, err := store.Summary(ctx)
			if err != nil {
				return exitError{code: harvest.ExitStoreError, err: err}
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "harvest log is empty")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ARTIFACT TYPE\tSUCCEEDED\tFAILED\tPENDING")
			for _, ts := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", ts.ArtifactType, ts.Succeeded, ts.Failed, ts.Pending)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			var since time.Time
			if sinceHours > 0 {
				since = clk.Now().Add(-time.Duration(sinceHours * float64(time.Hour)))
			}
			failures, err := store.Failures(ctx, since)
			if err != nil {
				return exitError{code: harvest.ExitStoreError, err: err}
			}
			if len(failures) == 0 {
				return nil
			}

			fmt.Fprintf(out, "\n%d unhealed failures:\n", len(failures))
			w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tARTIFACT TYPE\tLAST FAILURE")
			for _, rec := range failures {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.EntityID, rec.ArtifactType, rec.LastFailure.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64Var(&sinceHours, "since", 0, "only list failures newer than this many hours (0 = all)")

	return cmd
}
