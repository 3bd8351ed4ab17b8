package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coursepipe/internal/config"
	"coursepipe/internal/dag"
	"coursepipe/internal/orchestrator"
	"coursepipe/internal/quality"
	"coursepipe/internal/report"
	"coursepipe/internal/schedule"
	"coursepipe/internal/stage"
	"coursepipe/internal/state"
	"coursepipe/internal/ui"
	"coursepipe/internal/warehouse"
	"coursepipe/pkg/models"
)

func newStageRunner(cfg *models.Config) *stage.Runner {
	return &stage.Runner{
		Binary:      cfg.DBT.Binary,
		ProjectDir:  cfg.DBT.ProjectDir,
		ProfilesDir: cfg.DBT.ProfilesDir,
		Target:      cfg.DBT.Target,
		Command:     cfg.DBT.Command,
		Timeout:     cfg.DBT.Timeout,
		Logger:      logger,
	}
}

func newExporter(cfg *models.Config, db *sql.DB) report.Exporter {
	return report.Exporter{
		DB:         db,
		OutputDir:  cfg.Report.OutputDir,
		Table:      cfg.Report.Table,
		Prefix:     cfg.Report.Prefix,
		DateColumn: cfg.Report.DateColumn,
		Logger:     logger,
	}
}

func newChecker(cfg *models.Config, db *sql.DB) quality.Checker {
	return quality.Checker{
		DB:        db,
		MartTable: cfg.Report.Table,
		Logger:    logger,
	}
}

func newSchedule(cfg *models.Config) (schedule.Schedule, error) {
	loc, err := config.Location(cfg)
	if err != nil {
		return schedule.Schedule{}, err
	}
	start, err := config.StartDate(cfg)
	if err != nil {
		return schedule.Schedule{}, err
	}
	return schedule.New(start, cfg.Schedule.CatchUp, loc), nil
}

// parseLogicalDate parses YYYY-MM-DD in the schedule time zone. An empty value
// selects the most recent due date.
func parseLogicalDate(cfg *models.Config, value string) (time.Time, error) {
	sched, err := newSchedule(cfg)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		date, ok := sched.LatestDue(time.Now())
		if !ok {
			return time.Time{}, fmt.Errorf("no logical date is due yet (start date %s)", cfg.Schedule.StartDate)
		}
		return date, nil
	}

	date, err := time.ParseInLocation(time.DateOnly, value, sched.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", value)
	}
	return date, nil
}

func warehouseOpener(cfg *models.Config) orchestrator.WarehouseOpener {
	return func(ctx context.Context) (*sql.DB, error) {
		return warehouse.Open(ctx, cfg.Warehouse.Path)
	}
}

func warehouseLocker(cfg *models.Config) orchestrator.Locker {
	return func(ctx context.Context) (func() error, error) {
		lock, err := warehouse.AcquireLock(ctx, cfg.Warehouse.Path, cfg.Warehouse.LockTimeout)
		if err != nil {
			return nil, err
		}
		return lock.Release, nil
	}
}

// buildPipeline assembles the course engagement graph. onExport receives the report path.
func buildPipeline(cfg *models.Config, onExport func(path string)) (*orchestrator.Pipeline, error) {
	open := warehouseOpener(cfg)
	tasks := orchestrator.DefaultTasks{
		Stages: newStageRunner(cfg),
		Report: orchestrator.ReportTask(open, newExporter(cfg, nil), onExport),
	}
	if cfg.Pipeline.QualityChecks {
		tasks.Quality = orchestrator.QualityTask(open, newChecker(cfg, nil))
	}
	return orchestrator.DefaultPipeline(tasks)
}

// taskObserver prints task transitions as they happen.
func taskObserver(out *ui.UI) dag.Observer {
	return func(ti dag.TaskInstance, from dag.TaskState) {
		switch ti.State {
		case dag.StateRunning:
			if ti.Attempts > 1 {
				out.Step(fmt.Sprintf("%s (attempt %d)", ti.Task, ti.Attempts))
			} else {
				out.Step(ti.Task)
			}
		case dag.StateSuccess:
			out.Printf("  %s %s %s\n", ui.ColorSuccess("✓"), ti.Task, ui.ColorDim(ui.FormatDuration(ti.Duration())))
		case dag.StateFailed, dag.StateSkipped, dag.StateCancelled, dag.StateRetrying:
			out.VerbosePrintf("  %s %s\n", ti.Task, ui.StateString(ti.State))
		}
	}
}

func newOrchestrator(cfg *models.Config, p *orchestrator.Pipeline, store *state.Store) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithRetryPolicy(config.RetryPolicy(cfg)),
		orchestrator.WithMaxParallel(cfg.Pipeline.MaxParallel),
		orchestrator.WithLocker(warehouseLocker(cfg)),
		orchestrator.WithObserver(taskObserver(console)),
		orchestrator.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, orchestrator.WithRecorder(store))
	}
	return orchestrator.New(p, opts...)
}

func printRunSummary(result *orchestrator.RunResult, reportPath string) {
	if result == nil || console.IsQuiet() {
		return
	}
	console.Section("Run summary")
	console.KeyValue("Run", result.ID)
	console.KeyValue("Logical date", result.LogicalDate.Format(time.DateOnly))
	console.KeyValue("Trigger", result.Trigger)
	console.KeyValue("Status", ui.StateString(result.Status))
	console.KeyValue("Duration", ui.FormatDuration(result.FinishedAt.Sub(result.StartedAt)))
	if reportPath != "" {
		console.KeyValue("Report", reportPath)
	}
	console.Println()
	ui.TaskTable(console.Out, result.Tasks)
}
