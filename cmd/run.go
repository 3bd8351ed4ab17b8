package cmd

import (
	"time"

	"coursepipe/internal/orchestrator"
	"coursepipe/internal/state"
	"coursepipe/internal/ui"

	"github.com/spf13/cobra"
)

var runFlags struct {
	date   string
	dryRun bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for a logical date",
	Long: `Run staging, intermediate and marts in order and export the report for one
logical date. Without --date the most recent due date is used.

A failed task is retried per the retry settings. When a task exhausts its retries
everything downstream of it is skipped and no report is written for that date.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.date, "date", "d", "", "logical date YYYY-MM-DD (default most recent due date)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "print the execution plan without running it")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logicalDate, err := parseLogicalDate(cfg, runFlags.date)
	if err != nil {
		return err
	}

	var reportPath string
	pipeline, err := buildPipeline(cfg, func(path string) { reportPath = path })
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		console.Section("Plan for " + logicalDate.Format(time.DateOnly))
		ui.GraphTable(console.Out, pipeline.Graph)
		return nil
	}

	store, err := state.Open(ctx, cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	console.Header("Pipeline Run " + logicalDate.Format(time.DateOnly))
	orch := newOrchestrator(cfg, pipeline, store)
	result, err := orch.Run(ctx, logicalDate, orchestrator.TriggerManual)
	printRunSummary(result, reportPath)
	if err != nil {
		return err
	}

	console.Success("Report written to " + reportPath)
	return nil
}
