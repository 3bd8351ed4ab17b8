package cmd

import (
	"context"
	"time"

	"coursepipe/internal/orchestrator"
	"coursepipe/internal/schedule"
	"coursepipe/internal/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline daily on schedule until interrupted",
	Long: `Poll the schedule and run the pipeline for every logical date that is due.

A logical date is due once the following day has started in the schedule time zone.
With catch-up disabled only the most recent due date runs; with catch-up enabled every
date since the start date (or the last recorded run) runs in order.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sched, err := newSchedule(cfg)
	if err != nil {
		return err
	}

	var reportPath string
	pipeline, err := buildPipeline(cfg, func(path string) { reportPath = path })
	if err != nil {
		return err
	}

	store, err := state.Open(ctx, cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := newOrchestrator(cfg, pipeline, store)
	scheduler := &schedule.Scheduler{
		Schedule:     sched,
		PollInterval: cfg.Schedule.PollInterval,
		History:      store,
		Logger:       logger,
		Trigger: func(ctx context.Context, logicalDate time.Time) error {
			reportPath = ""
			console.Header("Scheduled Run " + logicalDate.Format(time.DateOnly))
			result, err := orch.Run(ctx, logicalDate, orchestrator.TriggerScheduled)
			printRunSummary(result, reportPath)
			if err != nil {
				console.ShowError(err)
			}
			return err
		},
	}

	console.Info("Scheduler started; next run at " + sched.NextDue(time.Now()).Format(time.DateTime+" MST"))
	logger.Info("Serving", zap.String("warehouse", cfg.Warehouse.Path), zap.Duration("poll_interval", cfg.Schedule.PollInterval))

	if err := scheduler.Run(ctx); err != nil {
		return err
	}
	console.Info("Scheduler stopped")
	return nil
}
