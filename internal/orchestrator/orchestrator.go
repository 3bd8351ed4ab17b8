// Package orchestrator walks a task graph for one logical date, applying retries,
// timeouts and cancellation, and records every state change.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coursepipe/internal/dag"
	"coursepipe/internal/observability"
	"coursepipe/internal/state"
	apperrors "coursepipe/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Trigger kinds recorded with each run.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Recorder persists run and task instance state. Failures are logged, never fatal.
type Recorder interface {
	StartRun(ctx context.Context, run state.Run) error
	RecordTask(ctx context.Context, runID string, ti dag.TaskInstance) error
	FinishRun(ctx context.Context, runID string, status dag.TaskState, finishedAt time.Time, runErr error) error
}

// Locker takes an exclusive lock for the duration of a run and returns its release func.
type Locker func(ctx context.Context) (release func() error, err error)

// RunResult is the final state of one run.
type RunResult struct {
	ID          string
	LogicalDate time.Time
	Trigger     string
	Status      dag.TaskState
	Tasks       []dag.TaskInstance
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Task returns the instance for name.
func (r *RunResult) Task(name string) (dag.TaskInstance, bool) {
	for _, ti := range r.Tasks {
		if ti.Task == name {
			return ti, true
		}
	}
	return dag.TaskInstance{}, false
}

// Orchestrator runs a Pipeline. At most one run is active per Orchestrator.
type Orchestrator struct {
	pipeline    *Pipeline
	policy      apperrors.RetryPolicy
	maxParallel int
	recorder    Recorder
	locker      Locker
	observer    dag.Observer
	logger      *zap.Logger
	newID       func() string

	running sync.Mutex
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRetryPolicy sets the default retry policy for tasks without their own
func WithRetryPolicy(p apperrors.RetryPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithMaxParallel bounds how many independent tasks run at once
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithRecorder persists run history
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLocker adds a lock held for the whole run, typically the warehouse file lock
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithObserver is told about every task state transition
func WithObserver(fn dag.Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = observability.OrNop(logger) }
}

// New creates an orchestrator for p.
func New(p *Pipeline, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pipeline:    p,
		policy:      apperrors.DefaultRetryPolicy(),
		maxParallel: 4,
		logger:      zap.NewNop(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan returns the tasks in the order a sequential run would execute them.
func (o *Orchestrator) Plan() []string {
	return o.pipeline.Graph.TopologicalOrder()
}

// Run executes every task for logicalDate.
//
// A task starts only after all of its upstream tasks succeeded. A failed attempt is retried
// per its policy; a task that exhausts its retries is FAILED and everything downstream of
// it is SKIPPED. Cancelling ctx stops dispatch, cancels running tasks and marks every
// unfinished task CANCELLED. Run returns a non-nil error whenever the run did not succeed,
// together with the result.
func (o *Orchestrator) Run(ctx context.Context, logicalDate time.Time, trigger string) (*RunResult, error) {
	if !o.running.TryLock() {
		return nil, apperrors.New(apperrors.ErrCodeRunInProgress, "a pipeline run is already in progress").
			WithContext("logical_date", logicalDate.Format("2006-01-02"))
	}
	defer o.running.Unlock()

	if o.locker != nil {
		release, err := o.locker(ctx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(); err != nil {
				o.logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	if trigger == "" {
		trigger = TriggerManual
	}
	result := &RunResult{
		ID:          o.newID(),
		LogicalDate: logicalDate,
		Trigger:     trigger,
		StartedAt:   time.Now(),
	}
	logger := o.logger.With(
		zap.String("run_id", result.ID),
		zap.String("logical_date", logicalDate.Format("2006-01-02")))

	// Bookkeeping survives cancellation of the run itself
	recordCtx := context.WithoutCancel(ctx)
	if o.recorder != nil {
		run := state.Run{ID: result.ID, LogicalDate: logicalDate, Trigger: trigger, StartedAt: result.StartedAt}
		if err := o.recorder.StartRun(recordCtx, run); err != nil {
			logger.Error("Failed to record run start", zap.Error(err))
		}
	}

	rs := dag.NewRunState(o.pipeline.Graph, func(ti dag.TaskInstance, from dag.TaskState) {
		logger.Debug("Task state changed",
			zap.String("task", ti.Task),
			zap.String("from", string(from)),
			zap.String("to", string(ti.State)),
			zap.Int("attempt", ti.Attempts))
		if o.recorder != nil {
			if err := o.recorder.RecordTask(recordCtx, result.ID, ti); err != nil {
				logger.Error("Failed to record task state", zap.String("task", ti.Task), zap.Error(err))
			}
		}
		if o.observer != nil {
			o.observer(ti, from)
		}
	})

	logger.Info("Run started", zap.String("trigger", trigger), zap.Strings("plan", o.Plan()))

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	fatal := o.dispatch(runCtx, abort, rs, logicalDate, logger)

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if cancelled := rs.CancelRemaining(cause); len(cancelled) > 0 {
			logger.Warn("Tasks cancelled", zap.Strings("tasks", cancelled), zap.Error(cause))
		}
	}

	result.Tasks = rs.Snapshot()
	result.FinishedAt = time.Now()
	result.Status = rs.Outcome()

	var runErr error
	switch {
	case fatal != nil:
		result.Status = dag.StateFailed
		runErr = fatal
	case result.Status == dag.StateCancelled:
		cancelErr := apperrors.New(apperrors.ErrCodeRunCancelled, "pipeline run cancelled")
		cancelErr.Cause = context.Cause(runCtx)
		runErr = cancelErr
	case result.Status == dag.StateFailed:
		runErr = failedRunError(result.Tasks)
	}

	if o.recorder != nil {
		if err := o.recorder.FinishRun(recordCtx, result.ID, result.Status, result.FinishedAt, runErr); err != nil {
			logger.Error("Failed to record run finish", zap.Error(err))
		}
	}

	logger.Info("Run finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	return result, runErr
}

// dispatch starts every ready task as soon as its upstream succeeded, bounded by
// maxParallel, and returns once nothing is running and nothing more can start,
// or every task is terminal.
// The returned error is an orchestration fault, never a task failure.
func (o *Orchestrator) dispatch(ctx context.Context, abort context.CancelCauseFunc, rs *dag.RunState, logicalDate time.Time, logger *zap.Logger) error {
	var g errgroup.Group
	g.SetLimit(o.maxParallel)

	total := o.pipeline.Graph.Len()
	finished := make(chan struct{}, total)
	dispatched := make(map[string]bool, total)
	inflight := 0

	for {
		if ctx.Err() == nil {
			for _, name := range rs.Ready() {
				if dispatched[name] {
					continue
				}
				dispatched[name] = true
				inflight++
				g.Go(func() error {
					defer func() { finished <- struct{}{} }()
					if err := o.execute(ctx, rs, name, logicalDate, logger); err != nil {
						abort(err)
						return err
					}
					return nil
				})
			}
		}

		if inflight == 0 || rs.Done() {
			break
		}
		<-finished
		inflight--
	}

	return g.Wait()
}

// execute drives one task through its attempts. It returns an error only when the
// orchestrator itself misbehaved: a dependency was not met or a transition was illegal.
func (o *Orchestrator) execute(ctx context.Context, rs *dag.RunState, name string, logicalDate time.Time, logger *zap.Logger) error {
	spec, ok := o.pipeline.Spec(name)
	if !ok {
		return apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("no task bound to %q", name))
	}
	policy := o.policy
	if spec.Retry != nil {
		policy = *spec.Retry
	}
	logger = logger.With(zap.String("task", name))

	from := dag.StatePending
	for attempt := 1; ; attempt++ {
		if err := rs.CheckUpstream(name); err != nil {
			logger.Error("Task invoked before its dependencies succeeded", zap.Error(err))
			return err
		}
		if err := rs.Transition(name, from, dag.StateRunning, nil); err != nil {
			return err
		}

		logger.Info("Task started", zap.Int("attempt", attempt), zap.Int("max_attempts", policy.MaxAttempts()))
		start := time.Now()
		err := o.invoke(ctx, spec, logicalDate)
		duration := time.Since(start)

		if err == nil {
			logger.Info("Task succeeded", zap.Int("attempt", attempt), zap.Duration("duration", duration))
			return rs.Transition(name, dag.StateRunning, dag.StateSuccess, nil)
		}

		if ctx.Err() != nil {
			logger.Warn("Task cancelled", zap.Int("attempt", attempt), zap.Error(err))
			return rs.Transition(name, dag.StateRunning, dag.StateCancelled, context.Cause(ctx))
		}

		if trErr := rs.Transition(name, dag.StateRunning, dag.StateFailed, err); trErr != nil {
			return trErr
		}

		if !policy.ShouldRetry(attempt, err) {
			logger.Error("Task failed",
				zap.Int("attempt", attempt),
				zap.Duration("duration", duration),
				zap.Error(err))
			skipped, skipErr := rs.SkipDownstream(name)
			if len(skipped) > 0 {
				logger.Warn("Downstream tasks skipped", zap.Strings("tasks", skipped))
			}
			return skipErr
		}

		delay := policy.DelayFor(attempt)
		logger.Warn("Task failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if trErr := rs.Transition(name, dag.StateFailed, dag.StateRetrying, nil); trErr != nil {
			return trErr
		}
		if waitErr := policy.Wait(ctx, attempt); waitErr != nil {
			return rs.Transition(name, dag.StateRetrying, dag.StateCancelled, context.Cause(ctx))
		}
		from = dag.StateRetrying
	}
}

// invoke runs one attempt, converting panics, timeouts and untyped errors into task errors.
func (o *Orchestrator) invoke(ctx context.Context, spec TaskSpec, logicalDate time.Time) (err error) {
	attemptCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.TaskExecutionError(spec.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	err = spec.Task.Run(attemptCtx, logicalDate)
	if err == nil {
		return nil
	}

	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return apperrors.TaskTimeoutError(spec.Name, spec.Timeout)
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.TaskExecutionError(spec.Name, err)
}

func failedRunError(tasks []dag.TaskInstance) error {
	var failed []string
	var first string
	for _, ti := range tasks {
		if ti.State == dag.StateFailed {
			failed = append(failed, ti.Task)
			if first == "" {
				first = ti.LastError
			}
		}
	}
	err := apperrors.New(apperrors.ErrCodeTaskExecution,
		fmt.Sprintf("pipeline run failed: %s", strings.Join(failed, ", "))).
		WithContext("failed_tasks", failed)
	if first != "" {
		err.Cause = errors.New(first)
	}
	return err
}
