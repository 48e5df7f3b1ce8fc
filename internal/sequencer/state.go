package sequencer

import (
	"slices"

	"github.com/seantiz/benchrun/internal/launcher"
)

// Phase is the coarse state of the sequencer.
type Phase int

const (
	// Idle means nothing is queued and nothing is in flight.
	Idle Phase = iota
	// Running means a dispatch is in flight or queued behind one.
	Running
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Dispatch is a descriptor handed to the launcher, tagged with the execution
// ID its completion must carry.
type Dispatch struct {
	RunID       string              `json:"run_id"`
	ExecutionID string              `json:"execution_id"`
	Seq         int                 `json:"seq"`
	Descriptor  launcher.Descriptor `json:"descriptor"`
}

// State is the explicit sequencer state. Idle holds no run, no current
// dispatch and no remaining descriptors.
//
// Current may belong to an earlier run than RunID when a run was replaced
// while a unit was in flight; the new run's head waits for that completion.
type State struct {
	Phase      Phase                 `json:"phase"`
	RunID      string                `json:"run_id,omitempty"`
	Current    *Dispatch             `json:"current,omitempty"`
	Remaining  []launcher.Descriptor `json:"remaining,omitempty"`
	Dispatched int                   `json:"dispatched"`
}

// Begin replaces any queued run in s with a new run over ds. When nothing is
// in flight the head of ds is popped and returned for dispatch. With empty
// ds and nothing in flight the result is Idle.
func Begin(s State, runID string, ds []launcher.Descriptor, newID func() string) (State, *Dispatch) {
	s.RunID = runID
	s.Remaining = slices.Clone(ds)
	s.Dispatched = 0

	if s.Current != nil {
		s.Phase = Running
		return s, nil
	}
	return take(s, newID)
}

// Advance applies a completion. A completion that does not match the
// in-flight dispatch is ignored and ok is false. Otherwise the in-flight slot
// is cleared and the next descriptor, if any, is popped for dispatch.
func Advance(s State, c launcher.Completion, newID func() string) (next State, d *Dispatch, ok bool) {
	if s.Current == nil || s.Current.ExecutionID != c.ExecutionID {
		return s, nil, false
	}
	s.Current = nil
	next, d = take(s, newID)
	return next, d, true
}

// take pops the head of the queue into the in-flight slot.
func take(s State, newID func() string) (State, *Dispatch) {
	if len(s.Remaining) == 0 {
		return State{Phase: Idle}, nil
	}

	head := s.Remaining[0]
	s.Remaining = s.Remaining[1:]
	if len(s.Remaining) == 0 {
		s.Remaining = nil
	}

	d := &Dispatch{
		RunID:       s.RunID,
		ExecutionID: newID(),
		Seq:         s.Dispatched,
		Descriptor:  head,
	}
	s.Dispatched++
	s.Current = d
	s.Phase = Running
	return s, d
}
