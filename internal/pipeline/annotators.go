package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/config"
	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/track"
)

// BuildAnnotators selects one annotator per track from cfg. File-backed
// tracks read their documents from trackDir.
func BuildAnnotators(cfg config.TracksConfig, trackDir string) (track.Annotators, error) {
	anns := track.Annotators{}

	switch {
	case cfg.Engineered.Skip:
		anns[model.TrackEngineered] = track.Skipped{Track: model.TrackEngineered}
	case cfg.Engineered.Source == config.SourceFile:
		anns[model.TrackEngineered] = track.EngineeredFile{Dir: trackDir}
	case cfg.Engineered.Source == config.SourceFeatures:
		anns[model.TrackEngineered] = track.EngineeredFeatures{}
	default:
		return nil, eris.Errorf("pipeline: unknown engineered track source %q", cfg.Engineered.Source)
	}

	switch {
	case cfg.Natural.Skip:
		anns[model.TrackNatural] = track.Skipped{Track: model.TrackNatural}
	case cfg.Natural.Source == config.SourceFile:
		anns[model.TrackNatural] = track.NaturalFile{Dir: trackDir}
	default:
		return nil, eris.Errorf("pipeline: unknown natural track source %q", cfg.Natural.Source)
	}

	switch {
	case cfg.QC.Skip:
		anns[model.TrackQC] = track.Skipped{Track: model.TrackQC}
	case cfg.QC.Source == config.SourceNative:
		anns[model.TrackQC] = track.QCNative{}
	case cfg.QC.Source == config.SourceFile:
		anns[model.TrackQC] = track.QCFile{Dir: trackDir}
	default:
		return nil, eris.Errorf("pipeline: unknown qc track source %q", cfg.QC.Source)
	}
	return anns, nil
}
