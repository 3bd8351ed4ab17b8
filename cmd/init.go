package cmd

import (
	"fmt"

	"coursepipe/internal/quality"
	"coursepipe/internal/ui"
	"coursepipe/internal/warehouse"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initFlags struct {
	dataDir string
	check   bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the raw schema and load the CSV extracts",
	Long: `Create the raw schema in the warehouse and load one CSV extract per raw table.

Existing raw tables are dropped and recreated, so running init twice produces the same
row counts. A missing extract is reported and skipped; the other tables still load.
The command exits non-zero only when the warehouse cannot be opened.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initFlags.dataDir, "data-dir", "", "directory holding raw_<table>.csv extracts (default warehouse.data_dir)")
	initCmd.Flags().BoolVar(&initFlags.check, "check", false, "run raw data quality checks after loading")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.Warehouse.DataDir
	if initFlags.dataDir != "" {
		dataDir = initFlags.dataDir
	}

	console.Header("Warehouse Initialization")
	console.KeyValue("Warehouse", cfg.Warehouse.Path)
	console.KeyValue("Extracts", dataDir)
	console.Println()

	lock, err := warehouse.AcquireLock(ctx, cfg.Warehouse.Path, cfg.Warehouse.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	db, err := warehouse.Open(ctx, cfg.Warehouse.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	initializer := warehouse.NewInitializer(db, dataDir,
		warehouse.WithLogger(logger),
		warehouse.WithProgress(console),
	)
	result, err := initializer.Initialize(ctx)
	if err != nil {
		return err
	}

	console.Section("Row counts")
	if !console.IsQuiet() {
		ui.RowCountTable(console.Out, warehouse.TableNames(), result.Counts)
	}

	for _, e := range result.Errors {
		console.ShowError(e)
	}

	if initFlags.check {
		checker := newChecker(cfg, db)
		report, err := checker.CheckRaw(ctx)
		if err != nil {
			console.ShowError(err)
		} else {
			for _, failed := range report.Failed() {
				console.Warning(fmt.Sprintf("check failed: %s (%s)", failed.Name, failed.Detail))
			}
		}
		logCheckSummary(report)
	}

	summary := fmt.Sprintf("Initialization finished in %s with %d warning(s) and %d error(s)",
		ui.FormatDuration(result.Duration), len(result.Warnings), len(result.Errors))
	if result.Clean() {
		console.Success(summary)
	} else {
		console.Warning(summary)
	}
	return nil
}

func logCheckSummary(report *quality.Report) {
	if report == nil {
		return
	}
	logger.Info("Raw quality checks finished",
		zap.Int("checks", len(report.Results)),
		zap.Int("failed", len(report.Failed())))
}
