package cmd

import (
	"fmt"
	"strings"

	"coursepipe/internal/stage"
	"coursepipe/internal/ui"
	"coursepipe/internal/warehouse"

	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:       "stage <name>",
	Short:     "Run a single transformation stage",
	Long:      `Run one dbt model layer outside a pipeline run. Valid stages: ` + strings.Join(stage.Names(), ", ") + `.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: stage.Names(),
	RunE:      runStage,
}

func init() {
	rootCmd.AddCommand(stageCmd)
}

func runStage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock, err := warehouse.AcquireLock(ctx, cfg.Warehouse.Path, cfg.Warehouse.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	runner := newStageRunner(cfg)
	console.StartProgress(fmt.Sprintf("Running %s %s", cfg.DBT.Binary, strings.Join(runner.Args(name), " ")))
	result, err := runner.Run(ctx, name)
	if err != nil {
		console.StopProgress(false, fmt.Sprintf("Stage %s failed", name))
		return err
	}
	console.StopProgress(true, fmt.Sprintf("Stage %s finished in %s", name, ui.FormatDuration(result.Duration)))

	if console.IsVerbose() {
		console.Println(result.Output)
	}
	return nil
}
