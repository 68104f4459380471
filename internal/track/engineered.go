package track

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/extract"
	"github.com/sells-group/space-cli/internal/model"
)

// Track document suffixes, appended to the sample_id inside the track dir.
const (
	SuffixEngineered = ".engineered.json"
	SuffixNatural    = ".natural.json"
	SuffixBakta      = ".bakta.gff3"
	SuffixMobTyper   = ".mobtyper.tsv"
	SuffixCopla      = ".copla.tsv"
	SuffixQC         = ".qc.json"
)

// DocPath returns the path of a sample's track document.
func DocPath(dir, sampleID, suffix string) string {
	return filepath.Join(dir, sampleID+suffix)
}

// readJSON decodes a track document. os.ErrNotExist is preserved in the
// chain so callers can tell a missing document from a corrupt one.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "track: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "track: decode %s", path)
	}
	return nil
}

type engineeredDoc struct {
	SampleID        string `json:"sample_id"`
	HasSyntheticOri bool   `json:"has_synthetic_ori"`
	Origins         []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Start *int   `json:"start"`
		End   *int   `json:"end"`
	} `json:"origins"`
	OriginNames []string `json:"origin_names"`
	Markers     []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"markers"`
	MarkerNames []string `json:"marker_names"`
	Error       *string  `json:"error"`
}

// EngineeredFile reads origin-detector output from Dir.
type EngineeredFile struct {
	Dir string
}

func (EngineeredFile) Kind() model.TrackKind { return model.TrackEngineered }
func (EngineeredFile) Name() string          { return "file" }

// Annotate loads <Dir>/<sample_id>.engineered.json. A missing or corrupt
// document is an InconsistentJoinError. An error reported inside a valid
// document is kept on the partial.
func (a EngineeredFile) Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := emptyEngineered(rec.SampleID, "plasmidkit")

	var doc engineeredDoc
	if err := readJSON(DocPath(a.Dir, rec.SampleID, SuffixEngineered), &doc); err != nil {
		return nil, unreadableDoc(rec.SampleID, model.TrackEngineered, err)
	}
	if doc.SampleID != "" {
		p.SampleID = doc.SampleID
	}
	p.HasSyntheticOri = doc.HasSyntheticOri
	for _, o := range doc.Origins {
		p.Origins = append(p.Origins, model.Origin{Name: o.ID, Type: o.Type, Start: o.Start, End: o.End})
	}
	for _, m := range doc.Markers {
		p.Markers = append(p.Markers, model.Marker{Name: m.ID, Type: m.Type})
	}
	p.OriginNames = namesOr(doc.OriginNames, p.Origins, func(o model.Origin) string { return o.Name })
	p.MarkerNames = namesOr(doc.MarkerNames, p.Markers, func(m model.Marker) string { return m.Name })
	if doc.Error != nil {
		p.Error = *doc.Error
	}
	return p, nil
}

// namesOr returns explicit when present, otherwise the names of items.
func namesOr[T any](explicit []string, items []T, name func(T) string) []string {
	if len(explicit) > 0 {
		return append([]string{}, explicit...)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, name(it))
	}
	return out
}

func emptyEngineered(sampleID, tool string) model.EngineeredPartial {
	return model.EngineeredPartial{
		TrackStatus: model.TrackStatus{SampleID: sampleID, Tool: tool},
		Origins:     []model.Origin{},
		Markers:     []model.Marker{},
		OriginNames: []string{},
		MarkerNames: []string{},
	}
}

// EngineeredFeatures derives the engineered track from the record's own
// rep_origin and resistance CDS annotation, for inputs with no detector
// output.
type EngineeredFeatures struct{}

func (EngineeredFeatures) Kind() model.TrackKind { return model.TrackEngineered }
func (EngineeredFeatures) Name() string          { return "features" }

// Annotate never fails except on cancellation.
func (EngineeredFeatures) Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := emptyEngineered(rec.SampleID, "features")

	for _, f := range rec.FeaturesOfType("rep_origin") {
		name := firstQualifier(f, "label", "gene", "standard_name", "product", "note")
		if name == "" {
			name = "rep_origin"
		}
		start, end := f.Start, f.End
		p.Origins = append(p.Origins, model.Origin{Name: name, Type: f.Type, Start: &start, End: &end})
		p.OriginNames = append(p.OriginNames, name)
	}

	resistance := extract.ResistanceMatcher()
	for _, f := range rec.FeaturesOfType("CDS") {
		name := firstQualifier(f, "gene", "label", "product")
		text := strings.Join([]string{f.Qualifier("gene"), f.Qualifier("product"), f.Qualifier("note")}, " ")
		if name == "" || len(resistance.Match(text)) == 0 {
			continue
		}
		p.Markers = append(p.Markers, model.Marker{Name: name, Type: "resistance"})
		p.MarkerNames = append(p.MarkerNames, name)
	}

	p.HasSyntheticOri = len(p.Origins) > 0
	return p, nil
}

func firstQualifier(f model.Feature, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(f.Qualifier(k)); v != "" {
			return v
		}
	}
	return ""
}
