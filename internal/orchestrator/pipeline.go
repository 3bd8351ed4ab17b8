package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coursepipe/internal/dag"
	"coursepipe/internal/quality"
	"coursepipe/internal/report"
	"coursepipe/internal/stage"
	apperrors "coursepipe/pkg/errors"
)

// Task names of the course engagement pipeline.
const (
	TaskStaging      = stage.Staging
	TaskIntermediate = stage.Intermediate
	TaskMarts        = stage.Marts
	TaskQuality      = "quality"
	TaskReport       = "report"
)

// Task is one unit of work in a pipeline. It must return an error for any failure.
type Task interface {
	Run(ctx context.Context, logicalDate time.Time) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, logicalDate time.Time) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, logicalDate time.Time) error {
	return f(ctx, logicalDate)
}

// TaskSpec binds a task to its name and execution limits.
type TaskSpec struct {
	Name    string
	Task    Task
	Timeout time.Duration          // zero means no per-attempt limit
	Retry   *apperrors.RetryPolicy // nil uses the orchestrator policy
}

// Pipeline is a validated graph with a task bound to every node.
type Pipeline struct {
	Graph *dag.Graph
	specs map[string]TaskSpec
}

// NewPipeline validates the graph formed by specs and edges.
func NewPipeline(specs []TaskSpec, edges []dag.Edge) (*Pipeline, error) {
	b := dag.NewBuilder()
	byName := make(map[string]TaskSpec, len(specs))
	for _, s := range specs {
		if s.Task == nil {
			return nil, apperrors.GraphError(fmt.Sprintf("task %q has no implementation", s.Name))
		}
		b.AddTask(s.Name)
		byName[s.Name] = s
	}
	for _, e := range edges {
		b.AddEdge(e.From, e.To)
	}

	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &Pipeline{Graph: g, specs: byName}, nil
}

// Spec returns the spec bound to name.
func (p *Pipeline) Spec(name string) (TaskSpec, bool) {
	s, ok := p.specs[name]
	return s, ok
}

// StageRunner runs one transformation stage.
type StageRunner interface {
	Run(ctx context.Context, name string) (*stage.Result, error)
}

// StageTask runs stage name through r.
func StageTask(r StageRunner, name string) Task {
	return TaskFunc(func(ctx context.Context, _ time.Time) error {
		_, err := r.Run(ctx, name)
		return err
	})
}

// WarehouseOpener opens a connection that the caller closes. Connections are held only
// while a task runs because the transformation engine needs the warehouse file too.
// Open failures are task failures and retry under the task's policy.
type WarehouseOpener func(ctx context.Context) (*sql.DB, error)

// ReportTask exports the mart for the logical date through a fresh connection.
// onExport, if set, receives the written path.
func ReportTask(open WarehouseOpener, exporter report.Exporter, onExport func(path string)) Task {
	return TaskFunc(func(ctx context.Context, logicalDate time.Time) error {
		db, err := open(ctx)
		if err != nil {
			return apperrors.TaskExecutionError(TaskReport, err)
		}
		defer db.Close()

		e := exporter
		e.DB = db
		path, err := e.Export(ctx, logicalDate)
		if err != nil {
			return err
		}
		if onExport != nil {
			onExport(path)
		}
		return nil
	})
}

// QualityTask runs the raw and mart checks through a fresh connection.
func QualityTask(open WarehouseOpener, checker quality.Checker) Task {
	return TaskFunc(func(ctx context.Context, _ time.Time) error {
		db, err := open(ctx)
		if err != nil {
			return apperrors.TaskExecutionError(TaskQuality, err)
		}
		defer db.Close()

		c := checker
		c.DB = db
		_, err = c.Run(ctx)
		return err
	})
}

// DefaultTasks are the implementations behind the course engagement graph.
type DefaultTasks struct {
	Stages  StageRunner
	Report  Task
	Quality Task // optional
}

// DefaultPipeline builds staging -> intermediate -> marts -> [quality ->] report.
func DefaultPipeline(t DefaultTasks) (*Pipeline, error) {
	if t.Stages == nil || t.Report == nil {
		return nil, apperrors.GraphError("stage runner and report task are required")
	}

	specs := []TaskSpec{
		{Name: TaskStaging, Task: StageTask(t.Stages, stage.Staging)},
		{Name: TaskIntermediate, Task: StageTask(t.Stages, stage.Intermediate)},
		{Name: TaskMarts, Task: StageTask(t.Stages, stage.Marts)},
	}
	edges := []dag.Edge{
		{From: TaskStaging, To: TaskIntermediate},
		{From: TaskIntermediate, To: TaskMarts},
	}

	last := TaskMarts
	if t.Quality != nil {
		specs = append(specs, TaskSpec{Name: TaskQuality, Task: t.Quality})
		edges = append(edges, dag.Edge{From: TaskMarts, To: TaskQuality})
		last = TaskQuality
	}
	specs = append(specs, TaskSpec{Name: TaskReport, Task: t.Report})
	edges = append(edges, dag.Edge{From: last, To: TaskReport})

	return NewPipeline(specs, edges)
}
