package cmd

import (
	"coursepipe/internal/orchestrator"
	"coursepipe/internal/ui"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the validated task graph in execution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pipeline, err := buildPipeline(cfg, nil)
		if err != nil {
			return err
		}

		ui.GraphTable(console.Out, pipeline.Graph)
		for _, e := range pipeline.Graph.Edges() {
			console.VerbosePrintf("%s -> %s\n", e.From, e.To)
		}
		if !pipeline.Graph.Has(orchestrator.TaskQuality) {
			console.VerbosePrintf("quality checks disabled (pipeline.quality_checks: false)\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
