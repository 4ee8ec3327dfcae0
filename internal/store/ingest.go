package store

import (
	"context"
	"database/sql"
	"time"
)

// ImportRun records a single import of a source file for auditing.
type ImportRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Kind          string // one of the ingest Kind constants
	Location      string
	SizeBytes     sql.NullInt64
	RecordsParsed sql.NullInt64
	RecordsStored sql.NullInt64
	Skipped       bool // content identical to the last import
	Success       bool
	ErrorMessage  sql.NullString
}

// StartImportRun creates a new import run record and returns it.
func (s *Store) StartImportRun(ctx context.Context, kind, location string) (*ImportRun, error) {
	run := &ImportRun{
		StartedAt: time.Now().UTC(),
		Kind:      kind,
		Location:  location,
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (started_at, kind, location, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Kind, run.Location)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteImportRun updates the import run with results.
func (s *Store) CompleteImportRun(ctx context.Context, run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			finished_at = ?,
			size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			skipped = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.SizeBytes, run.RecordsParsed, run.RecordsStored,
		run.Skipped, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentImportRuns returns the latest import runs, newest first.
func (s *Store) RecentImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, kind, location, size_bytes,
			   records_parsed, records_stored, skipped, success, error_message
		FROM import_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Kind, &r.Location,
			&r.SizeBytes, &r.RecordsParsed, &r.RecordsStored, &r.Skipped, &r.Success,
			&r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
