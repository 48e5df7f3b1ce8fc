package model

import "time"

// Run status constants.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Execution status constants.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Result codes reported by a launcher when a benchmark unit finishes.
const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
	ResultCrashed  = "crashed"
)

// validRunTransitions maps each run status to the statuses it may move to.
var validRunTransitions = map[string]map[string]bool{
	RunRunning: {
		RunCompleted: true,
		RunAborted:   true,
	},
}

// ValidRunTransition reports whether a run may move from one status to another.
func ValidRunTransition(from, to string) bool {
	targets, ok := validRunTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ExecutionStatus maps a launcher result code to the persisted execution status.
func ExecutionStatus(resultCode string) string {
	switch resultCode {
	case ResultOK:
		return StatusCompleted
	case ResultCanceled:
		return StatusCanceled
	default:
		return StatusFailed
	}
}

// IsTerminal reports whether an execution status is final.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCanceled
}

// Run is one pass of the sequencer over an ordered set of benchmark groups.
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Dispatched int        `json:"dispatched"`
	Completed  int        `json:"completed"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Execution is a single dispatch of a benchmark group to a launcher.
type Execution struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Seq        int        `json:"seq"`
	Group      string     `json:"group"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	Status     string     `json:"status"`
	ResultCode string     `json:"result_code,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Output     []byte     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LogLine represents a single persisted output line from an execution.
type LogLine struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Seq         int       `json:"seq"`
	Line        string    `json:"line"`
	CreatedAt   time.Time `json:"created_at"`
}
