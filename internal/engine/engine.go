package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/mainloop"
	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/sequencer"
	"github.com/seantiz/benchrun/internal/store"
)

// Engine drives benchmark runs. Sequencer calls happen only on the main
// loop; launcher completions are posted back to it.
type Engine struct {
	store     store.Store
	launchers *launcher.Registry
	logger    *slog.Logger
	loop      *mainloop.Loop
	seq       *sequencer.Sequencer
	broker    *LogBroker

	// unitCtx bounds every launched unit; cancelled when Run returns.
	unitCtx    context.Context
	cancelUnit context.CancelFunc

	// idleWaiters is only touched on the main loop.
	idleWaiters []chan struct{}
}

// NewEngine creates an engine. Nothing runs until Run is called.
func NewEngine(s store.Store, reg *launcher.Registry, logger *slog.Logger) *Engine {
	unitCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:      s,
		launchers:  reg,
		logger:     logger,
		loop:       mainloop.New(),
		broker:     NewLogBroker(),
		unitCtx:    unitCtx,
		cancelUnit: cancel,
	}
	e.seq = sequencer.New(e.dispatch,
		sequencer.WithObserver((*observer)(e)),
		sequencer.WithLogger(logger),
	)
	return e
}

// Broker returns the engine's log broker for live output subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Run executes the main loop until ctx is done. Units still running when it
// returns are cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer e.cancelUnit()
	err := e.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StartRun records a new run over ds and hands it to the sequencer. Any run
// already in progress is replaced; its in-flight unit still finishes before
// the new run's first unit starts.
func (e *Engine) StartRun(ctx context.Context, ds []launcher.Descriptor) (*model.Run, error) {
	r := &model.Run{
		ID:        model.NewID(),
		Status:    model.RunRunning,
		Total:     len(ds),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, r); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ds = slices.Clone(ds)
	if err := e.loop.Post(func() { e.seq.Start(r.ID, ds) }); err != nil {
		if uerr := e.store.UpdateRunStatus(context.WithoutCancel(ctx), r.ID, model.RunAborted); uerr != nil {
			e.logger.Error("failed to abort unstarted run", "run_id", r.ID, "error", uerr)
		}
		return nil, fmt.Errorf("start run: %w", err)
	}
	return r, nil
}

// Recover aborts runs left running by a previous process. Call it before Run.
func (e *Engine) Recover(ctx context.Context) error {
	n, err := e.store.AbortInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("abort interrupted runs: %w", err)
	}
	if n > 0 {
		e.logger.Warn("aborted interrupted runs", "runs", n)
	}
	return nil
}

// State returns the sequencer state as seen from the main loop.
func (e *Engine) State(ctx context.Context) (sequencer.State, error) {
	var st sequencer.State
	if err := e.loop.Do(ctx, func() { st = e.seq.State() }); err != nil {
		return sequencer.State{}, err
	}
	return st, nil
}

// WaitIdle blocks until the sequencer has nothing queued or in flight.
func (e *Engine) WaitIdle(ctx context.Context) error {
	var wait chan struct{}
	err := e.loop.Do(ctx, func() {
		if e.seq.State().Phase == sequencer.Idle {
			return
		}
		wait = make(chan struct{})
		e.idleWaiters = append(e.idleWaiters, wait)
	})
	if err != nil {
		return err
	}
	if wait == nil {
		return nil
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loop.Stopped():
		return mainloop.ErrStopped
	}
}

// dispatch resolves the launcher for d and starts the unit. Output lines are
// persisted and published; the completion is posted back to the main loop.
func (e *Engine) dispatch(d sequencer.Dispatch) error {
	l, err := e.launchers.Resolve(d.Descriptor.Kind())
	if err != nil {
		return fmt.Errorf("resolve launcher: %w", err)
	}

	var seq atomic.Int32
	emit := func(line string) {
		n := int(seq.Add(1) - 1)
		if err := e.store.InsertLogLine(context.Background(), d.ExecutionID, n, line); err != nil {
			e.logger.Error("failed to persist log line", "execution_id", d.ExecutionID, "seq", n, "error", err)
		}
		e.broker.Publish(d.ExecutionID, line)
	}
	done := func(c launcher.Completion) {
		c.ExecutionID = d.ExecutionID
		if err := e.loop.Post(func() { e.seq.OnCompleted(c) }); err != nil {
			e.logger.Warn("completion after shutdown", "execution_id", d.ExecutionID, "error", err)
			e.finishStopped(d, c)
		}
	}

	return l.Launch(e.unitCtx, d.ExecutionID, d.Descriptor, emit, done)
}

// finishStopped records a completion that arrived after the main loop stopped.
// The sequence cannot continue, so the run is aborted.
func (e *Engine) finishStopped(d sequencer.Dispatch, c launcher.Completion) {
	(*observer)(e).Completed(d, c)
	err := e.store.UpdateRunStatus(context.Background(), d.RunID, model.RunAborted)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		e.logger.Error("failed to abort stopped run", "run_id", d.RunID, "error", err)
	}
}

// observer persists sequencer events. Its methods run on the main loop.
type observer Engine

func (o *observer) RunStarted(runID string, total int) {
	activeRuns.Set(1)
	o.logger.Debug("run accepted", "run_id", runID, "total", total)
}

func (o *observer) RunAborted(runID string, discarded int) {
	if err := o.store.UpdateRunStatus(context.Background(), runID, model.RunAborted); err != nil {
		o.logger.Error("failed to abort run", "run_id", runID, "error", err)
	}
	runsTotal.WithLabelValues(model.RunAborted).Inc()
	o.logger.Info("run aborted", "run_id", runID, "discarded", discarded)
}

func (o *observer) Dispatched(d sequencer.Dispatch) {
	ctx := context.Background()
	ex := &model.Execution{
		ID:        d.ExecutionID,
		RunID:     d.RunID,
		Seq:       d.Seq,
		Group:     d.Descriptor.Group(),
		Kind:      d.Descriptor.Kind(),
		Target:    d.Descriptor.Target(),
		Status:    model.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.CreateExecution(ctx, ex); err != nil {
		o.logger.Error("failed to record execution", "execution_id", d.ExecutionID, "error", err)
	}
	if err := o.store.IncrementRunCounters(ctx, d.RunID, 1, 0); err != nil {
		o.logger.Error("failed to count dispatch", "run_id", d.RunID, "error", err)
	}
	dispatchesTotal.Inc()

	o.logger.Info("benchmark dispatched",
		"run_id", d.RunID,
		"execution_id", d.ExecutionID,
		"group", d.Descriptor.Group(),
		"seq", d.Seq,
	)
}

func (o *observer) Completed(d sequencer.Dispatch, c launcher.Completion) {
	defer o.broker.Close(d.ExecutionID)

	ctx := context.Background()
	now := time.Now().UTC()
	exitCode := c.ExitCode
	durationMS := int(c.Duration.Milliseconds())
	ex := &model.Execution{
		ID:         d.ExecutionID,
		Status:     model.ExecutionStatus(c.ResultCode),
		ResultCode: c.ResultCode,
		ExitCode:   &exitCode,
		Output:     c.Output,
		Error:      c.Error,
		DurationMS: &durationMS,
		FinishedAt: &now,
	}
	if err := o.store.FinishExecution(ctx, ex); err != nil {
		o.logger.Error("failed to finish execution", "execution_id", d.ExecutionID, "error", err)
	}
	if err := o.store.IncrementRunCounters(ctx, d.RunID, 0, 1); err != nil {
		o.logger.Error("failed to count completion", "run_id", d.RunID, "error", err)
	}
	executionDuration.WithLabelValues(d.Descriptor.Group(), c.ResultCode).Observe(c.Duration.Seconds())

	o.logger.Info("benchmark completed",
		"run_id", d.RunID,
		"execution_id", d.ExecutionID,
		"group", d.Descriptor.Group(),
		"result_code", c.ResultCode,
		"duration_ms", durationMS,
	)
}

func (o *observer) RunFinished(runID string) {
	if err := o.store.UpdateRunStatus(context.Background(), runID, model.RunCompleted); err != nil {
		o.logger.Error("failed to complete run", "run_id", runID, "error", err)
	}
	runsTotal.WithLabelValues(model.RunCompleted).Inc()
	activeRuns.Set(0)

	for _, w := range o.idleWaiters {
		close(w)
	}
	o.idleWaiters = nil
}
