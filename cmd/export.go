package cmd

import (
	"time"

	"coursepipe/internal/warehouse"

	"github.com/spf13/cobra"
)

var exportFlags struct {
	date string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the engagement mart to a dated CSV report",
	Long: `Write the mart to <output_dir>/<prefix>_<YYYYMMDD>.csv for a logical date.
Exporting the same date again replaces the earlier file.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.date, "date", "d", "", "logical date YYYY-MM-DD (default most recent due date)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logicalDate, err := parseLogicalDate(cfg, exportFlags.date)
	if err != nil {
		return err
	}

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

	exporter := newExporter(cfg, db)
	path, err := exporter.Export(ctx, logicalDate)
	if err != nil {
		return err
	}

	console.Success("Report for " + logicalDate.Format(time.DateOnly) + " written to " + path)
	return nil
}
