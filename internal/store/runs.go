package store

import (
	"database/sql"
	"time"
)

const (
	RunDecimate  = "decimate"
	RunTimestamp = "timestamp"
)

// ProcessingRun records one decimation or timestamp conversion for auditing.
type ProcessingRun struct {
	ID           int64
	SessionID    string
	Kind         string
	Detail       sql.NullString // config or format, as JSON
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	InputRows    sql.NullInt64
	OutputRows   sql.NullInt64
	Outcome      string // "running", "ok", "superseded", "cancelled", "error"
	ErrorMessage sql.NullString
}

func (s *Store) StartRun(sessionID, kind, detail string) (*ProcessingRun, error) {
	run := &ProcessingRun{
		SessionID: sessionID,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		Outcome:   "running",
	}
	if detail != "" {
		run.Detail = sql.NullString{String: detail, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO processing_runs (session_id, kind, detail, started_at, outcome)
		VALUES (?, ?, ?, ?, ?)
	`, run.SessionID, run.Kind, run.Detail, run.StartedAt, run.Outcome)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) CompleteRun(run *ProcessingRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE processing_runs SET
			finished_at = ?,
			input_rows = ?,
			output_rows = ?,
			outcome = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.InputRows, run.OutputRows, run.Outcome, run.ErrorMessage, run.ID)
	return err
}

// RunHealthSummary counts runs per kind and outcome over a window.
type RunHealthSummary struct {
	Kind    string
	Outcome string
	Runs    int
}

func (s *Store) GetRunHealth(since time.Time) ([]RunHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT kind, outcome, COUNT(*)
		FROM processing_runs
		WHERE started_at >= ?
		GROUP BY kind, outcome
		ORDER BY kind, outcome
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunHealthSummary
	for rows.Next() {
		var h RunHealthSummary
		if err := rows.Scan(&h.Kind, &h.Outcome, &h.Runs); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetSessionRuns returns a session's runs, newest first.
func (s *Store) GetSessionRuns(sessionID string, limit int) ([]ProcessingRun, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, kind, detail, started_at, finished_at,
		       input_rows, output_rows, outcome, error_message
		FROM processing_runs
		WHERE session_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ProcessingRun
	for rows.Next() {
		var r ProcessingRun
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.Detail, &r.StartedAt, &r.FinishedAt,
			&r.InputRows, &r.OutputRows, &r.Outcome, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
