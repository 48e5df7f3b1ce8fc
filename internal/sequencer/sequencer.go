// Package sequencer runs benchmark descriptors strictly one at a time: a
// descriptor is dispatched only after the completion of the previous one has
// been reported, whatever its result.
//
// A Sequencer is not safe for concurrent use. All calls must happen on one
// goroutine, normally the main loop.
package sequencer

import (
	"io"
	"log/slog"

	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/model"
)

// DispatchFunc hands a dispatch to the launcher. It must not call back into
// the Sequencer synchronously; completions are delivered later through
// OnCompleted. A returned error means the unit never started.
type DispatchFunc func(Dispatch) error

// Observer receives sequencing events. Calls happen on the sequencer's
// goroutine.
type Observer interface {
	RunStarted(runID string, total int)
	RunAborted(runID string, discarded int)
	Dispatched(d Dispatch)
	Completed(d Dispatch, c launcher.Completion)
	RunFinished(runID string)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observer = o }
}

// WithIDFunc sets the execution ID generator. Tests use deterministic IDs.
func WithIDFunc(f func() string) Option {
	return func(s *Sequencer) { s.newID = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// Sequencer owns the run queue and the in-flight dispatch.
type Sequencer struct {
	state    State
	dispatch DispatchFunc
	observer Observer
	newID    func() string
	logger   *slog.Logger
}

// New creates an idle sequencer.
func New(dispatch DispatchFunc, opts ...Option) *Sequencer {
	s := &Sequencer{
		dispatch: dispatch,
		observer: nopObserver{},
		newID:    model.NewID,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Sequencer) State() State {
	st := s.state
	if st.Current != nil {
		cur := *st.Current
		st.Current = &cur
	}
	st.Remaining = append([]launcher.Descriptor(nil), st.Remaining...)
	return st
}

// Start replaces any queued run with a new run over ds and dispatches its
// head unless a unit is still in flight. Empty ds dispatches nothing.
func (s *Sequencer) Start(runID string, ds []launcher.Descriptor) {
	prev := s.state
	if prev.Phase == Running {
		s.logger.Info("run replaced", "run_id", prev.RunID, "discarded", len(prev.Remaining))
		s.observer.RunAborted(prev.RunID, len(prev.Remaining))
	}

	next, d := Begin(prev, runID, ds, s.newID)
	s.state = next

	s.logger.Info("run started", "run_id", runID, "total", len(ds))
	s.observer.RunStarted(runID, len(ds))

	if d == nil {
		if next.Phase == Idle {
			s.finish(runID)
		}
		return
	}
	s.run(d)
}

// OnCompleted is called when the in-flight unit finishes. Completions for
// anything other than the in-flight dispatch are dropped.
func (s *Sequencer) OnCompleted(c launcher.Completion) {
	s.run(s.complete(c))
}

// complete applies c and returns the next dispatch, if any.
func (s *Sequencer) complete(c launcher.Completion) *Dispatch {
	prev := s.state
	next, d, ok := Advance(prev, c, s.newID)
	if !ok {
		s.logger.Warn("completion ignored", "execution_id", c.ExecutionID)
		return nil
	}
	s.state = next

	s.observer.Completed(*prev.Current, c)
	if next.Phase == Idle {
		s.finish(prev.RunID)
	}
	return d
}

// run dispatches d. A dispatch that fails to start is completed as crashed
// right away so the queue keeps moving.
func (s *Sequencer) run(d *Dispatch) {
	for d != nil {
		s.observer.Dispatched(*d)
		err := s.dispatch(*d)
		if err == nil {
			return
		}

		s.logger.Error("dispatch failed",
			"run_id", d.RunID,
			"execution_id", d.ExecutionID,
			"group", d.Descriptor.Group(),
			"error", err,
		)
		d = s.complete(launcher.Completion{
			ExecutionID: d.ExecutionID,
			ResultCode:  model.ResultCrashed,
			ExitCode:    -1,
			Error:       err.Error(),
		})
	}
}

func (s *Sequencer) finish(runID string) {
	s.logger.Info("run finished", "run_id", runID)
	s.observer.RunFinished(runID)
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, int) {}
func (nopObserver) RunAborted(string, int) {}
func (nopObserver) Dispatched(Dispatch) {}
func (nopObserver) Completed(Dispatch, launcher.Completion) {}
func (nopObserver) RunFinished(string) {}
