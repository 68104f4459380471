package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/space-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline over an input directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, func(p *pipeline.Pipeline, cmd *cobra.Command) (*pipeline.Result, error) {
			return p.Run(cmd.Context())
		})
	},
}

// runPipeline applies the run flags to cfg, opens the store, and hands a
// ready Pipeline to exec. The result summary is printed as JSON.
func runPipeline(cmd *cobra.Command, exec func(*pipeline.Pipeline, *cobra.Command) (*pipeline.Result, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	if err := applyRunFlags(cmd); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	reg := prometheus.NewRegistry()
	p, err := pipeline.New(cfg, pipeline.WithStore(st), pipeline.WithMetrics(pipeline.NewMetrics(reg)))
	if err != nil {
		return err
	}

	result, runErr := exec(p, cmd)

	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			zap.L().Warn("failed to write metrics file", zap.String("path", path), zap.Error(err))
		}
	}
	if runErr != nil {
		return eris.Wrap(runErr, "pipeline run")
	}

	return printJSON(cmd.OutOrStdout(), map[string]any{
		"run_id":   result.RunID,
		"location": result.Location,
		"summary":  result.Summary,
	})
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	strs := map[string]*string{
		"input":  &cfg.Pipeline.InputDir,
		"tracks": &cfg.Pipeline.TrackDir,
		"out":    &cfg.Pipeline.OutputDir,
		"format": &cfg.Export.Format,
		"sink":   &cfg.Export.Sink,
	}
	for name, dst := range strs {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	bools := map[string]*bool{
		"skip-engineered": &cfg.Tracks.Engineered.Skip,
		"skip-natural":    &cfg.Tracks.Natural.Skip,
		"skip-qc":         &cfg.Tracks.QC.Skip,
	}
	for name, dst := range bools {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if flags.Lookup("concurrency") != nil && flags.Changed("concurrency") {
		n, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Pipeline.Concurrency = n
	}
	return nil
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("input", "", "input directory (default from config)")
	f.String("tracks", "", "track document directory (default: input directory)")
	f.String("out", "", "output directory (default from config)")
	f.String("format", "", "table format: parquet, csv, xlsx or jsonl")
	f.String("sink", "", "table destination: fs, s3 or store")
	f.Bool("skip-engineered", false, "skip the engineered track")
	f.Bool("skip-natural", false, "skip the natural track")
	f.Bool("skip-qc", false, "skip the QC track")
	f.Int("concurrency", 0, "samples processed in parallel (default from config)")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
