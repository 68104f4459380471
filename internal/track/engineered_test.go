package track

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/space-cli/internal/model"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestEngineeredFile(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "s1.engineered.json", `{
  "sample_id": "s1",
  "has_synthetic_ori": true,
  "origins": [{"id": "pUC_ori", "type": "rep_origin", "start": 10, "end": 600}],
  "origin_names": ["pUC_ori"],
  "markers": [{"id": "AmpR", "type": "marker"}],
  "marker_names": ["AmpR"],
  "total_annotations": 2,
  "error": null
}`)

	p, err := EngineeredFile{Dir: dir}.Annotate(context.Background(), &model.RawRecord{SampleID: "s1"})
	require.NoError(t, err)
	ep := p.(model.EngineeredPartial)
	assert.True(t, ep.HasSyntheticOri)
	assert.Empty(t, ep.Error)
	assert.Equal(t, []string{"pUC_ori"}, ep.OriginNames)
	assert.Equal(t, []string{"AmpR"}, ep.MarkerNames)
	require.Len(t, ep.Origins, 1)
	require.NotNil(t, ep.Origins[0].Start)
	assert.Equal(t, 10, *ep.Origins[0].Start)
	assert.Equal(t, "plasmidkit", ep.Tool)
}

func TestEngineeredFile_Unreadable(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		reason string
	}{
		{name: "missing", reason: "missing track document"},
		{name: "wrong type", doc: `{"has_synthetic_ori": "yes"}`, reason: "unreadable track document"},
		{name: "truncated", doc: `{"has_synthetic_ori": tr`, reason: "unreadable track document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.doc != "" {
				writeDoc(t, dir, "s1.engineered.json", tt.doc)
			}
			p, err := EngineeredFile{Dir: dir}.Annotate(context.Background(), &model.RawRecord{SampleID: "s1"})
			require.Error(t, err)
			assert.Nil(t, p)

			var je *InconsistentJoinError
			require.True(t, errors.As(err, &je))
			assert.Equal(t, "s1", je.SampleID)
			assert.Equal(t, model.TrackEngineered, je.Track)
			assert.Equal(t, tt.reason, je.Reason)
			assert.Contains(t, err.Error(), "s1.engineered.json")
		})
	}
}

func TestEngineeredFile_NamesFromOrigins(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "s2.engineered.json", `{"has_synthetic_ori": true, "origins": [{"id": "p15A"}], "error": "partial scan"}`)

	p, err := EngineeredFile{Dir: dir}.Annotate(context.Background(), &model.RawRecord{SampleID: "s2"})
	require.NoError(t, err)
	ep := p.(model.EngineeredPartial)
	assert.Equal(t, "s2", ep.SampleID)
	assert.Equal(t, []string{"p15A"}, ep.OriginNames)
	assert.Equal(t, "partial scan", ep.Error)
}

func TestEngineeredFeatures(t *testing.T) {
	rec := &model.RawRecord{
		SampleID: "s1",
		Features: []model.Feature{
			{Type: "rep_origin", Start: 5, End: 600, Qualifiers: map[string]string{"label": "ori"}},
			{Type: "CDS", Start: 700, End: 1500, Qualifiers: map[string]string{"gene": "bla", "product": "beta-lactamase"}},
			{Type: "CDS", Start: 1600, End: 1900, Qualifiers: map[string]string{"gene": "lacZ"}},
		},
	}
	p, err := EngineeredFeatures{}.Annotate(context.Background(), rec)
	require.NoError(t, err)
	ep := p.(model.EngineeredPartial)
	assert.True(t, ep.HasSyntheticOri)
	assert.Equal(t, []string{"ori"}, ep.OriginNames)
	assert.Equal(t, []string{"bla"}, ep.MarkerNames)
	assert.Equal(t, 5, *ep.Origins[0].Start)

	p, err = EngineeredFeatures{}.Annotate(context.Background(), &model.RawRecord{SampleID: "bare"})
	require.NoError(t, err)
	assert.False(t, p.(model.EngineeredPartial).HasSyntheticOri)
}

func TestAnnotate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &model.RawRecord{SampleID: "s1"}
	for _, a := range []Annotator{EngineeredFile{}, EngineeredFeatures{}, NaturalFile{}, QCFile{}, QCNative{}} {
		_, err := a.Annotate(ctx, rec)
		assert.ErrorIs(t, err, context.Canceled, a.Name())
	}
}
