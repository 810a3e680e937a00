package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/browser"
	"github.com/chemview-archive/harvester/internal/clock"
	"github.com/chemview-archive/harvester/internal/metrics"
	"github.com/chemview-archive/harvester/internal/plan"
	"github.com/chemview-archive/harvester/internal/state"
)

// Exit codes for fatal startup failures, matching the operator tooling that
// wraps this binary.
const (
	ExitOK          = 0
	ExitInputError  = 1
	ExitHeaderError = 2
	ExitStoreError  = 3
)

// Options wires a Runner. Store, Plan, Driver, Rows, Clock and Logger are
// required; Session may be nil when the shared browser could not launch, in
// which case drivers create their own per row.
type Options struct {
	Store         *state.Store
	Plan          *plan.Accumulator
	Driver        Driver
	Rows          RowSource
	Session       *browser.Session
	Clock         clock.Clock
	Logger        *zap.Logger
	Policy        Policy
	ArchiveRoot   string
	DebugDir      string
	EntityParam   string
	Headless      bool
	StopFile      string
	StartRow      int
	MaxAttempts   int
	RetryInterval time.Duration
}

// Summary aggregates one finished run.
type Summary struct {
	RunID        string
	RowsRead     int
	Attempts     int
	Successes    map[string]int
	TotalElapsed time.Duration
	Stopped      bool
}

// AverageElapsed is the mean wall time per dispatched attempt.
func (s Summary) AverageElapsed() time.Duration {
	if s.Attempts == 0 {
		return 0
	}
	return s.TotalElapsed / time.Duration(s.Attempts)
}

// Runner owns the sequential harvest loop. One row is fully processed
// (decision, dispatch, recording, heartbeat) before the next begins, so the
// plan accumulator and state store see a single writer.
type Runner struct {
	opts     Options
	logger   *zap.Logger
	runID    string
	progress *Progress
}

// NewRunner validates the options and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("harvest runner requires a state store")
	case opts.Plan == nil:
		return nil, fmt.Errorf("harvest runner requires a plan accumulator")
	case opts.Driver == nil:
		return nil, fmt.Errorf("harvest runner requires a driver")
	case opts.Rows == nil:
		return nil, fmt.Errorf("harvest runner requires a row source")
	case opts.Clock == nil:
		return nil, fmt.Errorf("harvest runner requires a clock")
	case opts.Logger == nil:
		return nil, fmt.Errorf("harvest runner requires a logger")
	case opts.Policy.PageType == "":
		return nil, fmt.Errorf("harvest runner requires an artifact policy")
	}

	runID := uuid.NewString()
	return &Runner{
		opts:     opts,
		logger:   opts.Logger.With(zap.String("run_id", runID)),
		runID:    runID,
		progress: NewProgress(opts.Clock.Now()),
	}, nil
}

// Progress exposes the live counters for the monitor endpoint.
func (r *Runner) Progress() *Progress { return r.progress }

// Run executes the loop until the rows are exhausted, the stop file appears,
// the attempt budget is spent, or the context is canceled. The pending plan
// batch is flushed exactly once on the way out, whatever the exit reason.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: r.runID, Successes: map[string]int{}}
	start := r.opts.Clock.Now()

	defer func() {
		if _, err := r.opts.Plan.Flush(); err != nil {
			r.logger.Error("final plan flush failed", zap.Error(err))
		}
		if r.opts.Session != nil {
			r.opts.Session.Close()
		}
		r.logSummary(summary, r.opts.Clock.Now().Sub(start))
	}()

	if err := os.MkdirAll(r.opts.ArchiveRoot, 0o750); err != nil {
		return summary, fmt.Errorf("create archive root %s: %w", r.opts.ArchiveRoot, err)
	}
	if r.opts.DebugDir != "" {
		if err := os.MkdirAll(r.opts.DebugDir, 0o750); err != nil {
			return summary, fmt.Errorf("create debug dir %s: %w", r.opts.DebugDir, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("context canceled, stopping harvest loop")
			summary.Stopped = true
			return summary, nil
		}
		if r.stopRequested() {
			r.logger.Info("stop file detected, terminating harvest loop gracefully",
				zap.String("stop_file", r.opts.StopFile))
			summary.Stopped = true
			return summary, nil
		}

		row, err := r.opts.Rows.Next()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("row source: %w", err)
		}

		summary.RowsRead = row.Number
		if r.opts.StartRow > 0 && row.Number < r.opts.StartRow {
			continue
		}
		if r.opts.MaxAttempts > 0 && summary.Attempts >= r.opts.MaxAttempts {
			r.logger.Info("reached configured attempt budget, stopping",
				zap.Int("max_attempts", r.opts.MaxAttempts))
			return summary, nil
		}

		if row.EntityID == "" || row.URL == "" {
			r.logger.Warn("row missing identifier or URL, skipping",
				zap.Int("row", row.Number),
				zap.String("entity_id", row.EntityID))
			continue
		}

		if err := r.processRow(ctx, row, &summary); err != nil {
			return summary, err
		}
	}
}

func (r *Runner) processRow(ctx context.Context, row Row, summary *Summary) error {
	url := FixupURL(row.URL, row.EntityID, r.opts.EntityParam)
	if url != row.URL {
		r.logger.Info("injected entity id into URL",
			zap.String("entity_id", row.EntityID),
			zap.String("url", url))
	}

	needed, err := r.neededTypes(ctx, row.EntityID)
	if err != nil {
		// A store that cannot answer must not be guessed around.
		return err
	}
	if len(needed) == 0 {
		r.logger.Debug("nothing needed for row",
			zap.Int("row", row.Number),
			zap.String("entity_id", row.EntityID))
		return nil
	}

	entityDir := filepath.Join(r.opts.ArchiveRoot, "CAS-"+row.EntityID)
	if err := os.MkdirAll(entityDir, 0o750); err != nil {
		return fmt.Errorf("create entity dir %s: %w", entityDir, err)
	}

	dispatchStart := r.opts.Clock.Now()
	outcome, driverErr := r.dispatch(ctx, Request{
		URL:           url,
		EntityID:      row.EntityID,
		EntityDir:     entityDir,
		DebugDir:      r.opts.DebugDir,
		ArchiveRoot:   r.opts.ArchiveRoot,
		Headless:      r.opts.Headless,
		Session:       r.opts.Session,
		Store:         r.opts.Store,
		Plan:          r.opts.Plan,
		Policy:        r.opts.Policy,
		Needed:        needed,
		RetryInterval: r.opts.RetryInterval,
	})
	elapsed := r.opts.Clock.Now().Sub(dispatchStart)

	if driverErr != nil {
		// Contained per row: the pending artifact types are recorded as
		// failed and the loop keeps going.
		r.logger.Error("driver failed",
			zap.Int("row", row.Number),
			zap.String("entity_id", row.EntityID),
			zap.Error(driverErr))
		outcome = Outcome{Attempted: true, Artifacts: map[string]ArtifactResult{}}
		for artifactType := range needed {
			outcome.Artifacts[artifactType] = ArtifactResult{
				Success:     false,
				Err:         driverErr.Error(),
				NavigateVia: url,
			}
		}
	}

	if outcome.Attempted {
		summary.Attempts++
		summary.TotalElapsed += elapsed
		r.progress.attemptMade(elapsed)
		metrics.AttemptDispatched(elapsed)

		if err := r.recordOutcome(ctx, row, outcome, summary); err != nil {
			return err
		}
	}

	r.heartbeat(row, outcome, summary)
	r.progress.rowProcessed()
	metrics.RowProcessed()
	return nil
}

// neededTypes asks the state store which artifact types still need fetching.
func (r *Runner) neededTypes(ctx context.Context, entityID string) (map[string]bool, error) {
	needed := map[string]bool{}
	for _, artifactType := range r.opts.Policy.Types() {
		need, err := r.opts.Store.NeedsFetch(ctx, entityID, artifactType, r.opts.RetryInterval)
		if err != nil {
			return nil, fmt.Errorf("needs-fetch decision for %s/%s: %w", entityID, artifactType, err)
		}
		if need {
			needed[artifactType] = true
		}
	}
	return needed, nil
}

// dispatch invokes the driver, converting a panic into an error so one bad
// page cannot abort the run.
func (r *Runner) dispatch(ctx context.Context, req Request) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("driver panic: %v", rec)
		}
	}()
	return r.opts.Driver.Harvest(ctx, req)
}

func (r *Runner) recordOutcome(ctx context.Context, row Row, outcome Outcome, summary *Summary) error {
	for _, artifactType := range r.opts.Policy.Types() {
		result, ok := outcome.Artifacts[artifactType]
		if !ok {
			continue
		}
		if result.Err != "" {
			r.logger.Warn("artifact error reported by driver",
				zap.String("entity_id", row.EntityID),
				zap.String("artifact_type", artifactType),
				zap.String("error", result.Err))
		}
		if result.Success {
			if err := r.opts.Store.RecordSuccess(ctx, row.EntityID, artifactType, result.LocalPath, result.NavigateVia); err != nil {
				return err
			}
			summary.Successes[artifactType]++
			r.progress.artifactSucceeded(artifactType)
			metrics.ArtifactOutcome(artifactType, "success")
		} else {
			if err := r.opts.Store.RecordFailure(ctx, row.EntityID, artifactType, result.NavigateVia); err != nil {
				return err
			}
			metrics.ArtifactOutcome(artifactType, "failure")
		}
	}
	return nil
}

// heartbeat emits the one-line per-row progress indicator.
func (r *Runner) heartbeat(row Row, outcome Outcome, summary *Summary) {
	fields := []zap.Field{
		zap.Int("row", row.Number),
		zap.String("entity_id", row.EntityID),
		zap.Bool("attempted", outcome.Attempted),
		zap.Int("attempts", summary.Attempts),
	}
	if r.opts.MaxAttempts > 0 {
		fields = append(fields, zap.Int("attempt_budget", r.opts.MaxAttempts))
	}
	for _, artifactType := range r.opts.Policy.Types() {
		if result, ok := outcome.Artifacts[artifactType]; ok {
			fields = append(fields, zap.Bool(artifactType+"_ok", result.Success))
		}
	}
	r.logger.Info("row processed", fields...)
}

func (r *Runner) stopRequested() bool {
	if r.opts.StopFile == "" {
		return false
	}
	_, err := os.Stat(r.opts.StopFile)
	return err == nil
}

func (r *Runner) logSummary(summary Summary, wall time.Duration) {
	fields := []zap.Field{
		zap.Int("rows_read", summary.RowsRead),
		zap.Int("attempts", summary.Attempts),
		zap.Duration("attempt_time_total", summary.TotalElapsed),
		zap.Duration("attempt_time_avg", summary.AverageElapsed()),
		zap.Duration("wall_time", wall),
		zap.Bool("stopped", summary.Stopped),
	}
	for artifactType, count := range summary.Successes {
		fields = append(fields, zap.Int(artifactType+"_succeeded", count))
	}
	r.logger.Info("harvest summary", fields...)
}
