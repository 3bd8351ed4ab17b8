package cmd

import (
	"time"

	"coursepipe/internal/state"
	"coursepipe/internal/ui"

	"github.com/spf13/cobra"
)

var runsFlags struct {
	limit int
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded pipeline runs",
	Long: `List recorded pipeline runs, newest logical date first. With a run ID, show the
task instances of that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsFlags.limit, "limit", "n", 20, "maximum number of runs to list")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := state.Open(ctx, cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		runs, err := store.ListRuns(ctx, runsFlags.limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			console.Info("No runs recorded yet")
			return nil
		}
		ui.RunsTable(console.Out, runs)
		return nil
	}

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	tasks, err := store.TaskInstances(ctx, run.ID)
	if err != nil {
		return err
	}

	console.Section("Run " + run.ID)
	console.KeyValue("Logical date", run.LogicalDate.Format(time.DateOnly))
	console.KeyValue("Trigger", run.Trigger)
	console.KeyValue("Status", ui.StateString(run.Status))
	console.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		console.KeyValue("Duration", ui.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	if run.Error != "" {
		console.KeyValue("Error", run.Error)
	}
	console.Println()
	ui.TaskTable(console.Out, tasks)
	return nil
}
