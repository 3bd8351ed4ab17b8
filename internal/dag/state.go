package dag

import (
	"fmt"
	"sync"
	"time"

	apperrors "coursepipe/pkg/errors"
)

// TaskState is the lifecycle state of one task instance within a run.
type TaskState string

const (
	StatePending   TaskState = "PENDING"
	StateRunning   TaskState = "RUNNING"
	StateSuccess   TaskState = "SUCCESS"
	StateFailed    TaskState = "FAILED"
	StateRetrying  TaskState = "RETRYING"
	StateSkipped   TaskState = "SKIPPED"
	StateCancelled TaskState = "CANCELLED"
)

// IsTerminal reports whether no further transition is expected.
// FAILED counts as terminal; the orchestrator leaves it only to retry.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateSkipped, StateCancelled:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[TaskState][]TaskState{
	StatePending:  {StateRunning, StateSkipped, StateCancelled},
	StateRunning:  {StateSuccess, StateFailed, StateCancelled},
	StateFailed:   {StateRetrying},
	StateRetrying: {StateRunning, StateCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to TaskState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TaskInstance is the execution record of one task within one run.
type TaskInstance struct {
	Task       string
	State      TaskState
	Attempts   int
	LastError  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the time between the first start and the final state, zero if unfinished.
func (ti TaskInstance) Duration() time.Duration {
	if ti.StartedAt.IsZero() || ti.FinishedAt.IsZero() {
		return 0
	}
	return ti.FinishedAt.Sub(ti.StartedAt)
}

// Observer is told about every applied transition.
type Observer func(ti TaskInstance, from TaskState)

// RunState holds the task instances of a single run. All mutation goes through
// validated transitions guarded by one mutex.
type RunState struct {
	mu        sync.Mutex
	graph     *Graph
	instances map[string]*TaskInstance
	observer  Observer
	now       func() time.Time
}

// NewRunState creates a state with every task PENDING.
func NewRunState(g *Graph, observer Observer) *RunState {
	rs := &RunState{
		graph:     g,
		instances: make(map[string]*TaskInstance, g.Len()),
		observer:  observer,
		now:       time.Now,
	}
	for _, name := range g.Tasks() {
		rs.instances[name] = &TaskInstance{Task: name, State: StatePending}
	}
	return rs
}

// Get returns a copy of the instance for task.
func (rs *RunState) Get(task string) (TaskInstance, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ti, ok := rs.instances[task]
	if !ok {
		return TaskInstance{}, false
	}
	return *ti, true
}

// Snapshot returns copies of all instances in topological order.
func (rs *RunState) Snapshot() []TaskInstance {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]TaskInstance, 0, len(rs.instances))
	for _, name := range rs.graph.TopologicalOrder() {
		out = append(out, *rs.instances[name])
	}
	return out
}

// Transition moves task from -> to. The caller's expected from state makes races visible.
// Entering RUNNING counts an attempt; entering a terminal state stamps FinishedAt.
func (rs *RunState) Transition(task string, from, to TaskState, cause error) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.transitionLocked(task, from, to, cause)
}

func (rs *RunState) transitionLocked(task string, from, to TaskState, cause error) error {
	ti, ok := rs.instances[task]
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidState, fmt.Sprintf("unknown task %q", task))
	}
	if ti.State != from {
		return apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("invalid transition for %q: expected %s, got %s", task, from, ti.State))
	}
	if !CanTransition(from, to) {
		return apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("disallowed transition for %q: %s -> %s", task, from, to))
	}

	now := rs.now()
	ti.State = to
	switch to {
	case StateRunning:
		ti.Attempts++
		if ti.StartedAt.IsZero() {
			ti.StartedAt = now
		}
		ti.FinishedAt = time.Time{}
	case StateSuccess, StateFailed, StateSkipped, StateCancelled:
		ti.FinishedAt = now
	}
	if cause != nil {
		ti.LastError = cause.Error()
	}

	if rs.observer != nil {
		rs.observer(*ti, from)
	}
	return nil
}

// Ready returns PENDING tasks whose upstream tasks all succeeded, in topological order.
func (rs *RunState) Ready() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var ready []string
	for _, name := range rs.graph.TopologicalOrder() {
		if rs.instances[name].State != StatePending {
			continue
		}
		ok := true
		for _, up := range rs.graph.Upstream(name) {
			if rs.instances[up].State != StateSuccess {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}

// CheckUpstream returns a DependencyNotSatisfiedError if any upstream of task has not succeeded.
func (rs *RunState) CheckUpstream(task string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, up := range rs.graph.Upstream(task) {
		if st := rs.instances[up].State; st != StateSuccess {
			return apperrors.DependencyNotSatisfiedError(task, up, string(st))
		}
	}
	return nil
}

// SkipDownstream marks every PENDING descendant of task SKIPPED and returns their names.
// A descendant that is already RUNNING means dispatch ignored a dependency.
func (rs *RunState) SkipDownstream(task string) ([]string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var skipped []string
	for _, name := range rs.graph.Descendants(task) {
		switch rs.instances[name].State {
		case StatePending:
			if err := rs.transitionLocked(name, StatePending, StateSkipped, nil); err != nil {
				return skipped, err
			}
			skipped = append(skipped, name)
		case StateRunning, StateRetrying:
			return skipped, apperrors.New(apperrors.ErrCodeInvalidState,
				fmt.Sprintf("downstream task %q is %s while %q failed", name, rs.instances[name].State, task))
		}
	}
	return skipped, nil
}

// CancelRemaining moves every task that has not reached a terminal state to CANCELLED.
func (rs *RunState) CancelRemaining(cause error) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var cancelled []string
	for _, name := range rs.graph.TopologicalOrder() {
		st := rs.instances[name].State
		if st.IsTerminal() {
			continue
		}
		if err := rs.transitionLocked(name, st, StateCancelled, cause); err == nil {
			cancelled = append(cancelled, name)
		}
	}
	return cancelled
}

// Done reports whether every task reached a terminal state.
func (rs *RunState) Done() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, ti := range rs.instances {
		if !ti.State.IsTerminal() {
			return false
		}
	}
	return true
}

// Outcome summarises the run: SUCCESS only when every task succeeded, CANCELLED when
// any task was cancelled, FAILED otherwise.
func (rs *RunState) Outcome() TaskState {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	outcome := StateSuccess
	for _, ti := range rs.instances {
		switch ti.State {
		case StateSuccess:
		case StateCancelled:
			return StateCancelled
		default:
			outcome = StateFailed
		}
	}
	return outcome
}
