package main

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/space-cli/internal/extract"
	"github.com/sells-group/space-cli/internal/parser"
	"github.com/sells-group/space-cli/internal/pipeline"
	"github.com/sells-group/space-cli/internal/track"
)

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>",
	Short: "Print the normalized metadata of one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := parser.ParseFile(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), extract.New().Extract(rec))
	},
}

var qcCmd = &cobra.Command{
	Use:   "qc <file>",
	Short: "Print the natively computed QC track of one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := parser.ParseFile(args[0])
		if err != nil {
			return err
		}
		p, err := track.QCNative{}.Annotate(cmd.Context(), rec)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var scanNaturalCmd = &cobra.Command{
	Use:   "scan-natural",
	Short: "Print the natural track parsed from raw Bakta, MOB-suite and COPLA reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sampleID, _ := cmd.Flags().GetString("sample")
		reports := track.NaturalReports{}
		reports.Bakta, _ = cmd.Flags().GetString("bakta")
		reports.MobTyper, _ = cmd.Flags().GetString("mob")
		reports.Copla, _ = cmd.Flags().GetString("copla")

		p := track.NewNaturalPartial(sampleID)
		found, err := track.ScanNatural(&p, reports)
		if err != nil {
			return err
		}
		if !found {
			return eris.New("scan-natural: none of the given reports exists")
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify one record against its track documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tracks, _ := cmd.Flags().GetString("tracks"); tracks != "" {
			cfg.Pipeline.TrackDir = tracks
		}
		if cfg.Pipeline.TrackDir == "" {
			cfg.Pipeline.TrackDir = filepath.Dir(args[0])
		}
		for name, dst := range map[string]*bool{
			"skip-engineered": &cfg.Tracks.Engineered.Skip,
			"skip-natural":    &cfg.Tracks.Natural.Skip,
			"skip-qc":         &cfg.Tracks.QC.Skip,
		} {
			if cmd.Flags().Changed(name) {
				*dst, _ = cmd.Flags().GetBool(name)
			}
		}

		p, err := pipeline.New(cfg)
		if err != nil {
			return err
		}
		rec, err := parser.ParseFile(args[0])
		if err != nil {
			return err
		}
		cr, err := p.ClassifyRecord(cmd.Context(), rec)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cr)
	},
}

func init() {
	scanNaturalCmd.Flags().String("sample", "", "sample id (required)")
	scanNaturalCmd.Flags().String("bakta", "", "Bakta GFF3 report")
	scanNaturalCmd.Flags().String("mob", "", "MOB-suite mob_typer TSV report")
	scanNaturalCmd.Flags().String("copla", "", "COPLA TSV report")
	_ = scanNaturalCmd.MarkFlagRequired("sample")

	classifyCmd.Flags().String("tracks", "", "track document directory (default: the file's directory)")
	classifyCmd.Flags().Bool("skip-engineered", false, "skip the engineered track")
	classifyCmd.Flags().Bool("skip-natural", false, "skip the natural track")
	classifyCmd.Flags().Bool("skip-qc", false, "skip the QC track")

	rootCmd.AddCommand(normalizeCmd, qcCmd, scanNaturalCmd, classifyCmd)
}
