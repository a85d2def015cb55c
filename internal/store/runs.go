package store

import (
	"database/sql"
	"time"
)

// ImportRun records one import or fetch operation for auditing.
type ImportRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Kind          string // "import", "fetch", "irradiance"
	Target        string // directory, URL or table name
	RecordsParsed sql.NullInt64
	RecordsStored sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

// StartImportRun creates a new run record and returns it.
func (s *Store) StartImportRun(kind, target string) (*ImportRun, error) {
	run := &ImportRun{
		StartedAt: time.Now().UTC(),
		Kind:      kind,
		Target:    target,
	}

	result, err := s.db.Exec(`
		INSERT INTO import_runs (started_at, kind, target, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Kind, run.Target)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteImportRun updates the run with its results.
func (s *Store) CompleteImportRun(run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE import_runs SET
			finished_at = ?,
			records_parsed = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.RecordsParsed, run.RecordsStored, run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentImportRuns returns the latest runs, newest first.
func (s *Store) GetRecentImportRuns(limit int) ([]ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, kind, target, records_parsed, records_stored, success, error_message
		FROM import_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Kind, &r.Target,
			&r.RecordsParsed, &r.RecordsStored, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
