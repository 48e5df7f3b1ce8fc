package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/benchrun/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    total       INTEGER NOT NULL,
    dispatched  INTEGER NOT NULL DEFAULT 0,
    completed   INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    seq         INTEGER NOT NULL,
    group_name  TEXT NOT NULL,
    kind        TEXT NOT NULL,
    target      TEXT NOT NULL,
    status      TEXT NOT NULL,
    result_code TEXT NOT NULL DEFAULT '',
    exit_code   INTEGER,
    output      BLOB,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createExecutionsRunIndex = `
CREATE INDEX IF NOT EXISTS idx_executions_run ON executions (run_id, seq)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS log_lines (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    execution_id TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    line         TEXT NOT NULL,
    created_at   DATETIME NOT NULL
)`

const createLogLinesIndex = `
CREATE INDEX IF NOT EXISTS idx_log_lines_execution ON log_lines (execution_id, seq)`

const executionColumns = `id, run_id, seq, group_name, kind, target, status, result_code,
	exit_code, output, error, duration_ms, started_at, finished_at`

// ErrNotFound is returned when a run or execution is not found.
var ErrNotFound = errors.New("not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{
		createRunsTable,
		createExecutionsTable,
		createExecutionsRunIndex,
		createLogLinesTable,
		createLogLinesIndex,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, total, dispatched, completed, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Total, r.Dispatched, r.Completed, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, total, dispatched, completed, created_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Status, &r.Total, &r.Dispatched, &r.Completed, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a page of runs ordered newest first, along with the total
// number of runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, total, dispatched, completed, created_at, finished_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(&r.ID, &r.Status, &r.Total, &r.Dispatched, &r.Completed, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus moves a run to a new status, enforcing the allowed
// transitions. Terminal statuses also set finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	r, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidRunTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?",
		status, time.Now().UTC(), id, r.Status,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: run %s changed concurrently", ErrInvalidTransition, id)
	}
	return nil
}

// IncrementRunCounters adds to the dispatched and completed counters of a run.
func (s *SQLiteStore) IncrementRunCounters(ctx context.Context, id string, dispatched, completed int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE runs SET dispatched = dispatched + ?, completed = completed + ? WHERE id = ?",
		dispatched, completed, id,
	)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// interruptedError is recorded on executions left running by a previous process.
const interruptedError = "interrupted before completion"

// AbortInterrupted marks runs still running as aborted and their running
// executions as canceled. It returns the number of runs aborted. Call it only
// before the engine starts, when nothing can legitimately be running.
func (s *SQLiteStore) AbortInterrupted(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, result_code = ?, error = ?, finished_at = ?
		WHERE status = ?`,
		model.StatusCanceled, model.ResultCanceled, interruptedError, now,
		model.StatusRunning,
	); err != nil {
		return 0, fmt.Errorf("cancel executions: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE status = ?",
		model.RunAborted, now, model.RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("abort runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, e *model.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Seq, e.Group, e.Kind, e.Target, e.Status, e.ResultCode,
		e.ExitCode, e.Output, e.Error, e.DurationMS, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// FinishExecution records the outcome fields of e. Only a running execution
// can be finished.
func (s *SQLiteStore) FinishExecution(ctx context.Context, e *model.Execution) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, result_code = ?, exit_code = ?, output = ?,
			error = ?, duration_ms = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		e.Status, e.ResultCode, e.ExitCode, e.Output,
		e.Error, e.DurationMS, e.FinishedAt,
		e.ID, model.StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetExecution(ctx, e.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: execution %s is not running", ErrInvalidTransition, e.ID)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns the executions of a run in dispatch order.
func (s *SQLiteStore) ListExecutions(ctx context.Context, runID string) ([]*model.Execution, error) {
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE run_id = ? ORDER BY seq ASC`, runID)
}

// ListResults returns every finished execution, oldest first.
func (s *SQLiteStore) ListResults(ctx context.Context) ([]*model.Execution, error) {
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM executions
		WHERE status != ? ORDER BY started_at ASC, id ASC`, model.StatusRunning)
}

func (s *SQLiteStore) queryExecutions(ctx context.Context, query string, args ...any) ([]*model.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(sc scanner) (*model.Execution, error) {
	e := &model.Execution{}
	err := sc.Scan(
		&e.ID, &e.RunID, &e.Seq, &e.Group, &e.Kind, &e.Target, &e.Status, &e.ResultCode,
		&e.ExitCode, &e.Output, &e.Error, &e.DurationMS, &e.StartedAt, &e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetStats returns aggregate statistics across all runs and executions.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &Stats{
		CountByStatus: make(map[string]int),
		CountByGroup:  make(map[string]int),
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.Runs); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&stats.Executions); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	if err := countBy(ctx, tx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := countBy(ctx, tx, "group_name", stats.CountByGroup); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM executions WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills dst with execution counts grouped by column. column is
// always a constant from this file.
func countBy(ctx context.Context, tx *sql.Tx, column string, dst map[string]int) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM executions GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		dst[key] = n
	}
	return rows.Err()
}

// InsertLogLine persists one output line of an execution.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, executionID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO log_lines (execution_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		executionID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns the output lines of an execution in sequence order.
func (s *SQLiteStore) GetLogLines(ctx context.Context, executionID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, seq, line, created_at
		FROM log_lines WHERE execution_id = ? ORDER BY seq ASC`, executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}
