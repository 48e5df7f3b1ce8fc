package store

import (
	"context"
	"errors"

	"github.com/seantiz/benchrun/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Stats holds aggregate execution statistics.
type Stats struct {
	Runs          int            `json:"runs"`
	Executions    int            `json:"executions"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByGroup  map[string]int `json:"count_by_group"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs and their executions.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	IncrementRunCounters(ctx context.Context, id string, dispatched, completed int) error
	AbortInterrupted(ctx context.Context) (int, error)

	CreateExecution(ctx context.Context, e *model.Execution) error
	FinishExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, runID string) ([]*model.Execution, error)
	ListResults(ctx context.Context) ([]*model.Execution, error)

	GetStats(ctx context.Context) (*Stats, error)
	InsertLogLine(ctx context.Context, executionID string, seq int, line string) error
	GetLogLines(ctx context.Context, executionID string) ([]model.LogLine, error)
	Close() error
}
