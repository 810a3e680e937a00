// Package state persists per-(entity, artifact type) harvest history in an
// embedded SQLite file so an interrupted crawl can resume without re-fetching
// completed work.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chemview-archive/harvester/internal/clock"
)

// ErrNotFound is returned by GetStatus when no record exists for the pair.
var ErrNotFound = errors.New("state: record not found")

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS harvest_log (
    entity_id     TEXT NOT NULL,
    artifact_type TEXT NOT NULL,
    local_path    TEXT,
    last_success  TEXT,
    last_failure  TEXT,
    navigate_via  TEXT,
    PRIMARY KEY (entity_id, artifact_type)
);
`

// Record is one harvest_log row. Zero-value time fields mean "never".
type Record struct {
	EntityID     string
	ArtifactType string
	LocalPath    string
	LastSuccess  time.Time
	LastFailure  time.Time
	NavigateVia  string
}

// Succeeded reports whether any success has ever been recorded.
func (r Record) Succeeded() bool { return !r.LastSuccess.IsZero() }

// Store wraps the harvest_log table. Safe for use from a single goroutine,
// which is all the sequential harvest loop needs.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens (creating if necessary) the SQLite file at path and ensures the
// harvest_log table exists.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure harvest_log schema: %w", err)
	}
	return &Store{db: db, clock: clk}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetStatus retrieves the record for one (entity, artifact type) pair.
// Returns ErrNotFound when the pair has never been attempted. Any other error
// means the store itself is unavailable; callers must not treat it as either
// "no record" or "has succeeded".
func (s *Store) GetStatus(ctx context.Context, entityID, artifactType string) (Record, error) {
	const query = `
		SELECT local_path, last_success, last_failure, navigate_via
		FROM harvest_log
		WHERE entity_id = ? AND artifact_type = ?;
	`
	var (
		localPath   sql.NullString
		lastSuccess sql.NullString
		lastFailure sql.NullString
		navigateVia sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, entityID, artifactType).
		Scan(&localPath, &lastSuccess, &lastFailure, &navigateVia)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read harvest status for %s/%s: %w", entityID, artifactType, err)
	}

	rec := Record{
		EntityID:     entityID,
		ArtifactType: artifactType,
		LocalPath:    localPath.String,
		NavigateVia:  navigateVia.String,
	}
	if rec.LastSuccess, err = parseStamp(lastSuccess); err != nil {
		return Record{}, fmt.Errorf("parse last_success for %s/%s: %w", entityID, artifactType, err)
	}
	if rec.LastFailure, err = parseStamp(lastFailure); err != nil {
		return Record{}, fmt.Errorf("parse last_failure for %s/%s: %w", entityID, artifactType, err)
	}
	return rec, nil
}

// RecordSuccess upserts a success: success time is set to now, the local path
// and provenance URL are stored, and any earlier failure time is cleared. A
// later success always heals an earlier failure. Idempotent.
func (s *Store) RecordSuccess(ctx context.Context, entityID, artifactType, localPath, navigateVia string) error {
	const query = `
		INSERT INTO harvest_log (entity_id, artifact_type, local_path, last_success, last_failure, navigate_via)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT (entity_id, artifact_type) DO UPDATE SET
			local_path   = excluded.local_path,
			last_success = excluded.last_success,
			last_failure = NULL,
			navigate_via = excluded.navigate_via;
	`
	now := s.clock.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, entityID, artifactType, localPath, now, navigateVia); err != nil {
		return fmt.Errorf("record success for %s/%s: %w", entityID, artifactType, err)
	}
	return nil
}

// RecordFailure upserts a failure: failure time is set to now and the
// provenance URL is stored. An existing local path or success time is never
// modified, so an artifact that once succeeded is never treated as failing.
func (s *Store) RecordFailure(ctx context.Context, entityID, artifactType, navigateVia string) error {
	const query = `
		INSERT INTO harvest_log (entity_id, artifact_type, last_failure, navigate_via)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_id, artifact_type) DO UPDATE SET
			last_failure = excluded.last_failure,
			navigate_via = excluded.navigate_via;
	`
	now := s.clock.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, entityID, artifactType, now, navigateVia); err != nil {
		return fmt.Errorf("record failure for %s/%s: %w", entityID, artifactType, err)
	}
	return nil
}

// NeedsFetch decides whether the artifact still needs fetching:
//
//  1. no record: fetch
//  2. any recorded success: never fetch again (one-shot-success policy,
//     not a freshness TTL)
//  3. no success and no failure: fetch (incomplete earlier attempt)
//  4. failure older than retryInterval: fetch
//  5. failure within retryInterval: cool-down, skip
//
// A store error is returned as-is; it must not be read as a decision.
func (s *Store) NeedsFetch(ctx context.Context, entityID, artifactType string, retryInterval time.Duration) (bool, error) {
	rec, err := s.GetStatus(ctx, entityID, artifactType)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Succeeded() {
		return false, nil
	}
	if rec.LastFailure.IsZero() {
		return true, nil
	}
	return s.clock.Now().Sub(rec.LastFailure) >= retryInterval, nil
}

func parseStamp(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
