package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TypeSummary aggregates harvest progress for one artifact type.
type TypeSummary struct {
	ArtifactType string
	Succeeded    int
	Failed       int
	Pending      int
}

// Summary returns per-artifact-type counts: rows with a success time, rows
// with only a failure time, and rows with neither (interrupted attempts).
func (s *Store) Summary(ctx context.Context) ([]TypeSummary, error) {
	const query = `
		SELECT artifact_type,
		       SUM(CASE WHEN last_success IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(CASE WHEN last_success IS NULL AND last_failure IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(CASE WHEN last_success IS NULL AND last_failure IS NULL THEN 1 ELSE 0 END)
		FROM harvest_log
		GROUP BY artifact_type
		ORDER BY artifact_type;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("summarize harvest_log: %w", err)
	}
	defer rows.Close()

	var out []TypeSummary
	for rows.Next() {
		var ts TypeSummary
		if err := rows.Scan(&ts.ArtifactType, &ts.Succeeded, &ts.Failed, &ts.Pending); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return out, nil
}

// Failures lists unhealed failures (no success recorded) since the cutoff,
// newest first. A zero cutoff lists all of them.
func (s *Store) Failures(ctx context.Context, since time.Time) ([]Record, error) {
	const query = `
		SELECT entity_id, artifact_type, local_path, last_success, last_failure, navigate_via
		FROM harvest_log
		WHERE last_success IS NULL AND last_failure IS NOT NULL AND last_failure >= ?
		ORDER BY last_failure DESC;
	`
	cutoff := ""
	if !since.IsZero() {
		cutoff = since.UTC().Format(time.RFC3339)
	}
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure rows: %w", err)
	}
	return out, nil
}

// Clear deletes every harvest_log row. Operator action behind an explicit
// confirmation flag in the CLI; the harvest loop never calls it.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM harvest_log;`)
	if err != nil {
		return 0, fmt.Errorf("clear harvest_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared rows: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                                         Record
		localPath, lastSuccess, lastFailure, navVia sql.NullString
	)
	if err := row.Scan(&rec.EntityID, &rec.ArtifactType, &localPath, &lastSuccess, &lastFailure, &navVia); err != nil {
		return Record{}, fmt.Errorf("scan harvest_log row: %w", err)
	}
	rec.LocalPath = localPath.String
	rec.NavigateVia = navVia.String
	var err error
	if rec.LastSuccess, err = parseStamp(lastSuccess); err != nil {
		return Record{}, fmt.Errorf("parse last_success: %w", err)
	}
	if rec.LastFailure, err = parseStamp(lastFailure); err != nil {
		return Record{}, fmt.Errorf("parse last_failure: %w", err)
	}
	return rec, nil
}
