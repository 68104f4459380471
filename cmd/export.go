package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/space-cli/internal/pipeline"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export a directory of classified records",
	Long:  "Loads every *_classified.json document in --classified, dedups by seq_hash and writes the golden table and summary to the configured sink.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("classified")
		return runPipeline(cmd, func(p *pipeline.Pipeline, cmd *cobra.Command) (*pipeline.Result, error) {
			return p.Reexport(cmd.Context(), dir)
		})
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("classified", "", "directory of classified records (required)")
	f.String("out", "", "output directory (default from config)")
	f.String("format", "", "table format: parquet, csv, xlsx or jsonl")
	f.String("sink", "", "table destination: fs, s3 or store")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
	_ = exportCmd.MarkFlagRequired("classified")
	rootCmd.AddCommand(exportCmd)
}
