package harvest

import (
	"sync"
	"time"
)

// Progress tracks live run counters. The harvest loop is the only writer;
// the monitor endpoint reads snapshots from another goroutine, hence the
// mutex.
type Progress struct {
	mu        sync.Mutex
	rowsRead  int
	attempts  int
	successes map[string]int
	elapsed   time.Duration
	startedAt time.Time
}

// NewProgress creates an empty tracker stamped with the run start time.
func NewProgress(startedAt time.Time) *Progress {
	return &Progress{
		successes: map[string]int{},
		startedAt: startedAt,
	}
}

func (p *Progress) rowProcessed() {
	p.mu.Lock()
	p.rowsRead++
	p.mu.Unlock()
}

func (p *Progress) attemptMade(elapsed time.Duration) {
	p.mu.Lock()
	p.attempts++
	p.elapsed += elapsed
	p.mu.Unlock()
}

func (p *Progress) artifactSucceeded(artifactType string) {
	p.mu.Lock()
	p.successes[artifactType]++
	p.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartedAt time.Time      `json:"started_at"`
	RowsRead  int            `json:"rows_read"`
	Attempts  int            `json:"attempts"`
	Successes map[string]int `json:"successes"`
	ElapsedMs int64          `json:"attempt_elapsed_ms"`
}

// Snapshot returns a copy safe to serialize from another goroutine.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	successes := make(map[string]int, len(p.successes))
	for k, v := range p.successes {
		successes[k] = v
	}
	return Snapshot{
		StartedAt: p.startedAt,
		RowsRead:  p.rowsRead,
		Attempts:  p.attempts,
		Successes: successes,
		ElapsedMs: p.elapsed.Milliseconds(),
	}
}
