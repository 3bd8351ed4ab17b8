// Package state persists pipeline run history in SQLite.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"coursepipe/internal/common"
	"coursepipe/internal/dag"
	apperrors "coursepipe/pkg/errors"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id       TEXT PRIMARY KEY,
    logical_date TEXT NOT NULL,
    triggered_by TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   TEXT NOT NULL,
    finished_at  TEXT,
    error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_logical_date ON pipeline_runs(logical_date);
CREATE TABLE IF NOT EXISTS task_instances (
    run_id      TEXT NOT NULL REFERENCES pipeline_runs(run_id),
    task        TEXT NOT NULL,
    state       TEXT NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT,
    started_at  TEXT,
    finished_at TEXT,
    PRIMARY KEY (run_id, task)
);
`

// Run is one recorded pipeline run.
type Run struct {
	ID          string
	LogicalDate time.Time
	Trigger     string // scheduled or manual
	Status      dag.TaskState
	StartedAt   time.Time
	FinishedAt  time.Time
	Error       string
}

// Store records runs and task instances. It is written only by the orchestrator.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. ":memory:" keeps everything in process.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		cleaned, err := common.CleanPath(path)
		if err != nil {
			return nil, storeError("invalid state path", err)
		}
		if err := common.EnsureDir(filepath.Dir(cleaned), common.DirPermissionSecure); err != nil {
			return nil, storeError("failed to create state directory", err)
		}
		dsn = cleaned
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("failed to open state store", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return storeError("failed to configure state store", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storeError("failed to create state schema", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a RUNNING run.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_id, logical_date, triggered_by, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.LogicalDate.Format(dateLayout), run.Trigger, string(dag.StateRunning), formatTime(run.StartedAt))
	if err != nil {
		return storeError("failed to record run start", err)
	}
	return nil
}

// RecordTask upserts the current state of one task instance.
func (s *Store) RecordTask(ctx context.Context, runID string, ti dag.TaskInstance) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_instances (run_id, task, state, attempts, last_error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, task) DO UPDATE SET
    state = excluded.state,
    attempts = excluded.attempts,
    last_error = excluded.last_error,
    started_at = excluded.started_at,
    finished_at = excluded.finished_at`,
		runID, ti.Task, string(ti.State), ti.Attempts, nullString(ti.LastError),
		nullTime(ti.StartedAt), nullTime(ti.FinishedAt))
	if err != nil {
		return storeError("failed to record task instance", err).WithContext("task", ti.Task)
	}
	return nil
}

// FinishRun stamps the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status dag.TaskState, finishedAt time.Time, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		string(status), formatTime(finishedAt), msg, runID)
	if err != nil {
		return storeError("failed to record run finish", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.New(apperrors.ErrCodeStateStore, fmt.Sprintf("run %s not found", runID))
	}
	return nil
}

// LatestLogicalDate returns the most recent logical date that has any run, or nil.
func (s *Store) LatestLogicalDate(ctx context.Context, loc *time.Location) (*time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(logical_date) FROM pipeline_runs`).Scan(&raw); err != nil {
		return nil, storeError("failed to read latest logical date", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, raw.String, loc)
	if err != nil {
		return nil, storeError("corrupt logical date", err)
	}
	return &d, nil
}

const runColumns = `run_id, logical_date, triggered_by, status, started_at, finished_at, error`

// ListRuns returns up to limit runs, newest logical date first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM pipeline_runs
ORDER BY logical_date DESC, started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, storeError("failed to list runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to list runs", err)
	}
	return runs, nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrCodeStateStore, fmt.Sprintf("run %s not found", id))
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var logical, status, started string
	var finished, errText sql.NullString
	if err := sc.Scan(&r.ID, &logical, &r.Trigger, &status, &started, &finished, &errText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeError("failed to scan run", err)
	}
	r.Status = dag.TaskState(status)
	r.LogicalDate, _ = time.Parse(dateLayout, logical)
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	r.Error = errText.String
	return &r, nil
}

// TaskInstances returns the recorded instances of a run ordered by start time.
func (s *Store) TaskInstances(ctx context.Context, runID string) ([]dag.TaskInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task, state, attempts, last_error, started_at, finished_at
FROM task_instances
WHERE run_id = ?
ORDER BY COALESCE(started_at, '9999'), task`, runID)
	if err != nil {
		return nil, storeError("failed to read task instances", err)
	}
	defer rows.Close()

	var out []dag.TaskInstance
	for rows.Next() {
		var ti dag.TaskInstance
		var st string
		var lastErr, started, finished sql.NullString
		if err := rows.Scan(&ti.Task, &st, &ti.Attempts, &lastErr, &started, &finished); err != nil {
			return nil, storeError("failed to scan task instance", err)
		}
		ti.State = dag.TaskState(st)
		ti.LastError = lastErr.String
		if started.Valid {
			ti.StartedAt = parseTime(started.String)
		}
		if finished.Valid {
			ti.FinishedAt = parseTime(finished.String)
		}
		out = append(out, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to read task instances", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func storeError(message string, err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeStateStore {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.ErrCodeStateStore, message)
}
