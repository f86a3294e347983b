package db

import (
	"context"
	"database/sql"
)

// CreateJobRun records a completed job run
func (db *DB) CreateJobRun(ctx context.Context, run *JobRun) error {
	query := `
		INSERT INTO job_runs (run_id, job_kind, triggered_by, started_at, completed_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		run.RunID,
		run.JobKind,
		run.TriggeredBy,
		millis(run.StartedAt),
		millis(run.CompletedAt),
		run.Outcome,
		run.Error,
	)

	return err
}

// GetJobRunByRunID retrieves a job run by its run ID
func (db *DB) GetJobRunByRunID(ctx context.Context, runID string) (*JobRun, error) {
	query := `
		SELECT run_id, job_kind, triggered_by, started_at, completed_at, outcome, error
		FROM job_runs
		WHERE run_id = ?
	`

	run, err := scanJobRun(db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// GetJobRuns retrieves the most recent runs, optionally filtered by job kind
func (db *DB) GetJobRuns(ctx context.Context, jobKind string, limit int) ([]JobRun, error) {
	query := `
		SELECT run_id, job_kind, triggered_by, started_at, completed_at, outcome, error
		FROM job_runs
		WHERE (? = '' OR job_kind = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, jobKind, jobKind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []JobRun{}
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRun(row rowScanner) (*JobRun, error) {
	var (
		run         JobRun
		startedAt   int64
		completedAt int64
		errMsg      sql.NullString
	)

	err := row.Scan(
		&run.RunID,
		&run.JobKind,
		&run.TriggeredBy,
		&startedAt,
		&completedAt,
		&run.Outcome,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = fromMillis(completedAt)
	if errMsg.Valid {
		run.Error = &errMsg.String
	}

	return &run, nil
}
