package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"coursepipe/internal/config"
	"coursepipe/internal/observability"
	"coursepipe/internal/ui"
	"coursepipe/pkg/models"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	rootFlags struct {
		configFile string
		verbose    bool
		quiet      bool
		logLevel   string
		logFormat  string
	}

	logger  *zap.Logger
	console *ui.UI

	rootCmd = &cobra.Command{
		Use:   "coursepipe",
		Short: "Load, transform and report course engagement data",
		Long: `coursepipe loads raw course platform extracts into a local DuckDB warehouse,
runs the dbt staging, intermediate and marts layers in order, and exports a dated
course engagement report once per day.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.ShowError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootFlags.configFile, "config", "c", "", "config file (default ./coursepipe.yaml or $HOME/.coursepipe/coursepipe.yaml)")
	flags.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "verbose output and debug logging")
	flags.BoolVarP(&rootFlags.quiet, "quiet", "q", false, "only print errors")
	flags.StringVar(&rootFlags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&rootFlags.logFormat, "log-format", "console", "log format (json, console)")
}

func setup(cmd *cobra.Command, args []string) error {
	level := rootFlags.logLevel
	if rootFlags.verbose {
		level = "debug"
	}

	var err error
	logger, err = observability.NewLogger(observability.LoggerConfig{
		Level:   level,
		Format:  rootFlags.logFormat,
		Output:  cmd.ErrOrStderr(),
		Service: "coursepipe",
		Version: Version,
	})
	if err != nil {
		return err
	}

	console = ui.NewUI(rootFlags.verbose, rootFlags.quiet)
	console.Out = cmd.OutOrStdout()
	console.Err = cmd.ErrOrStderr()

	cmd.SetContext(observability.WithLogger(cmd.Context(), logger))
	return nil
}

// loadConfig resolves configuration from the --config flag, the environment and the
// default search paths.
func loadConfig() (*models.Config, error) {
	cfg, err := config.Load(viper.New(), rootFlags.configFile)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded",
		zap.String("warehouse", cfg.Warehouse.Path),
		zap.String("state", cfg.State.Path),
		zap.String("start_date", cfg.Schedule.StartDate),
		zap.Bool("catchup", cfg.Schedule.CatchUp))
	return cfg, nil
}
