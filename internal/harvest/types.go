// Package harvest drives the resumable row-at-a-time crawl loop: it decides
// per artifact type whether a fetch is still needed, dispatches site-specific
// drivers, and records outcomes in the state store.
package harvest

import (
	"context"
	"time"

	"github.com/chemview-archive/harvester/internal/browser"
	"github.com/chemview-archive/harvester/internal/plan"
	"github.com/chemview-archive/harvester/internal/state"
)

// Row is one non-blank input record. Number is 1-based and counted over
// non-blank rows only.
type Row struct {
	Number   int
	EntityID string
	URL      string
}

// RowSource yields input rows until io.EOF.
type RowSource interface {
	Next() (Row, error)
	Close() error
}

// ArtifactResult is a driver's verdict for one artifact type it acted on.
type ArtifactResult struct {
	Success     bool
	LocalPath   string
	Err         string
	NavigateVia string
}

// Outcome is the structured result of one driver invocation. Artifacts holds
// an entry only for the types the driver actually acted on; Attempted is
// false when the driver bailed out before doing any network work.
type Outcome struct {
	Attempted bool
	Artifacts map[string]ArtifactResult
}

// Request carries everything a driver needs for one row.
type Request struct {
	URL           string
	EntityID      string
	EntityDir     string
	DebugDir      string
	ArchiveRoot   string
	Headless      bool
	Session       *browser.Session
	Store         *state.Store
	Plan          *plan.Accumulator
	Policy        Policy
	Needed        map[string]bool
	RetryInterval time.Duration
}

// Driver performs the site-specific navigation and scraping for one harvest
// kind. A nil Session means the shared browser could not be created and the
// driver must bring its own.
type Driver interface {
	Harvest(ctx context.Context, req Request) (Outcome, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, req Request) (Outcome, error)

// Harvest implements Driver.
func (f DriverFunc) Harvest(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}
