package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/clock"
	"github.com/chemview-archive/harvester/internal/metrics"
)

// DefaultBatchSize is how many distinct groups go into one plan file.
const DefaultBatchSize = 25

// Accumulator is the mutable plan for one run: the tree plus batching state.
// It is an explicit value handed to the orchestrator and drivers, written from
// the single harvest goroutine.
type Accumulator struct {
	root      *Node
	outDir    string
	batchSize int
	clock     clock.Clock
	logger    *zap.Logger

	groups  map[string]struct{}
	flushes int
}

// NewAccumulator creates an accumulator whose root folder is named folder and
// whose plan files land in outDir (created if missing).
func NewAccumulator(folder, outDir string, batchSize int, clk clock.Clock, logger *zap.Logger) (*Accumulator, error) {
	if folder == "" {
		return nil, fmt.Errorf("plan folder name is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create plan output dir %s: %w", outDir, err)
	}
	return &Accumulator{
		root:      newNode(folder),
		outDir:    outDir,
		batchSize: batchSize,
		clock:     clk,
		logger:    logger,
		groups:    map[string]struct{}{},
	}, nil
}

// AddLinks queues urls under group/relPath. relPath may use forward or back
// slashes; empty means directly under the group folder. Empty URLs are
// skipped; URLs already present at the target leaf count as duplicates.
//
// When group is new since the last flush and the accumulator already holds a
// full batch of distinct groups, the pending tree is flushed first so the new
// group starts in a fresh file. Flushing before the add (never after) is what
// keeps one group's entries out of two plan files.
func (a *Accumulator) AddLinks(group, relPath string, urls []string) (added, duplicates int, err error) {
	return a.AddLinkParts(group, SplitPath(relPath), urls)
}

// AddLinkParts is AddLinks with a pre-split relative path.
func (a *Accumulator) AddLinkParts(group string, relParts []string, urls []string) (added, duplicates int, err error) {
	if group == "" {
		return 0, 0, fmt.Errorf("plan group key is required")
	}
	if len(urls) == 0 {
		return 0, 0, nil
	}

	if _, seen := a.groups[group]; !seen {
		if len(a.groups) >= a.batchSize {
			a.logger.Info("plan batch threshold reached, flushing before new group",
				zap.String("group", group),
				zap.Int("groups", len(a.groups)),
				zap.Int("batch_size", a.batchSize),
			)
			if _, ferr := a.Flush(); ferr != nil {
				// Keep accumulating; the data stays in memory and the
				// next flush retries with the same content.
				a.logger.Error("plan flush before new group failed", zap.Error(ferr))
			}
		}
		a.groups[group] = struct{}{}
	}

	leaf := a.root.child(group).descend(relParts)
	for _, url := range urls {
		if url == "" {
			continue
		}
		if leaf.addURL(url) {
			added++
		} else {
			duplicates++
		}
	}
	return added, duplicates, nil
}

// Flush serializes the current tree to a timestamped file in the output dir,
// then resets the tree (keeping the folder name) and the group tracking.
// Returns the written path, or "" when there was nothing to write.
func (a *Accumulator) Flush() (string, error) {
	if a.root.empty() {
		return "", nil
	}

	stamp := a.clock.Now().Format("20060102_150405")
	a.flushes++
	name := fmt.Sprintf("downloads_%s_%03d.json", stamp, a.flushes)
	path := filepath.Join(a.outDir, name)

	payload, err := json.MarshalIndent(a.root, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal download plan: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write download plan %s: %w", path, err)
	}

	a.logger.Info("saved download plan",
		zap.String("path", path),
		zap.Int("groups", len(a.groups)),
	)
	metrics.PlanFlushed()
	a.reset()
	return path, nil
}

// PendingGroups reports how many distinct groups were added since the last
// flush. Exposed for the heartbeat and the monitor endpoint.
func (a *Accumulator) PendingGroups() int { return len(a.groups) }

func (a *Accumulator) reset() {
	a.root = newNode(a.root.Folder)
	a.groups = map[string]struct{}{}
}
