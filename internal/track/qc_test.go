package track

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/space-cli/internal/model"
)

func TestHomopolymers(t *testing.T) {
	maxLen, count := Homopolymers("AAAAACCCCCCGT", 5)
	assert.Equal(t, 6, maxLen)
	assert.Equal(t, 2, count)

	maxLen, count = Homopolymers("NNNNNNNN", 5)
	assert.Zero(t, maxLen)
	assert.Zero(t, count)
}

func TestLinguisticComplexity(t *testing.T) {
	assert.InDelta(t, 4.0/6.0, LinguisticComplexity("ACGTACGT", 3), 1e-9)
	assert.InDelta(t, 0.0, LinguisticComplexity("AC", 3), 1e-9)
	assert.InDelta(t, 1.0/3.0, LinguisticComplexity("ACGNN", 3), 1e-9, "k-mers with N are not counted")
}

func TestRepeatFraction(t *testing.T) {
	assert.InDelta(t, 0.75, RepeatFraction("ATATATGC"), 1e-9)
	assert.InDelta(t, 0.0, RepeatFraction("ACGTTGCA"), 1e-9)
	assert.InDelta(t, 0.0, RepeatFraction(""), 1e-9)
}

func TestGCExtremeRegions(t *testing.T) {
	assert.Equal(t, 3, GCExtremeRegions(strings.Repeat("G", 100), 50))
	assert.Equal(t, 3, GCExtremeRegions(strings.Repeat("A", 100), 50))
	assert.Equal(t, 0, GCExtremeRegions(strings.Repeat("ACGT", 25), 50))
	assert.Equal(t, 0, GCExtremeRegions("GGG", 50))
}

func TestHairpins(t *testing.T) {
	assert.Equal(t, 1, Hairpins("AAAAAACCCTTTTTTGGGG"))
	assert.Equal(t, 0, Hairpins(strings.Repeat("A", 40)))
	assert.Equal(t, 0, Hairpins("AAAAAACCCTTTTTT"), "too short for the scan window")
}

func TestSynthesisRisk(t *testing.T) {
	score, reasons := SynthesisRisk(0.7, 8, 0.2, 6, 11)
	assert.InDelta(t, 0.9, score, 1e-9)
	assert.Equal(t, []string{
		"High GC content (70.0%)",
		"Long homopolymer (8 bp)",
		"High repeat content (20.0%)",
		"Many GC extreme regions (6)",
		"Many potential hairpins (11)",
	}, reasons)

	score, reasons = SynthesisRisk(0.5, 6, 0.06, 0, 0)
	assert.InDelta(t, 0.2, score, 1e-9)
	assert.Equal(t, []string{"Moderate homopolymer (6 bp)", "Moderate repeat content (6.0%)"}, reasons)

	score, reasons = SynthesisRisk(0.5, 0, 0, 0, 0)
	assert.Zero(t, score)
	assert.NotNil(t, reasons)
	assert.Empty(t, reasons)
}

func TestQCNative(t *testing.T) {
	rec := &model.RawRecord{SampleID: "poly", Sequence: strings.Repeat("a", 100)}
	p, err := QCNative{}.Annotate(context.Background(), rec)
	require.NoError(t, err)
	qc := p.(model.QCPartial)
	assert.Equal(t, "poly", qc.SampleID)
	assert.Equal(t, "native", qc.Tool)
	assert.Zero(t, qc.GCContent)
	assert.Equal(t, 100, qc.MaxHomopolymer)
	assert.Equal(t, 1, qc.HomopolymerCount)
	assert.Equal(t, 3, qc.GCExtremeRegions)
	assert.InDelta(t, 0.6, qc.SynthesisRisk, 1e-9)
	assert.Len(t, qc.SynthesisRiskReasons, 3)
}

func TestQCFile(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "s1.qc.json", `{
  "sample_id": "s1",
  "length": 120,
  "gc_content": 0.52,
  "linguistic_complexity": 0.97,
  "homopolymers": {"max_length": 6, "count": 2, "total_bases": 11},
  "tandem_repeats": {"count": 1, "fraction": 0.06},
  "gc_extremes": {"high_gc_regions": 1, "low_gc_regions": 2, "gc_range": 0.4},
  "hairpin_estimate": 3,
  "synthesis_risk": 0.2,
  "synthesis_risk_reasons": ["Moderate homopolymer (6 bp)"]
}`)
	p, err := QCFile{Dir: dir}.Annotate(context.Background(), &model.RawRecord{SampleID: "s1"})
	require.NoError(t, err)
	qc := p.(model.QCPartial)
	assert.Empty(t, qc.Error)
	assert.Equal(t, 6, qc.MaxHomopolymer)
	assert.Equal(t, 2, qc.HomopolymerCount)
	assert.Equal(t, 3, qc.GCExtremeRegions)
	assert.InDelta(t, 0.06, qc.RepeatFraction, 1e-9)
	assert.Equal(t, []string{"Moderate homopolymer (6 bp)"}, qc.SynthesisRiskReasons)

	p, err = QCFile{Dir: dir}.Annotate(context.Background(), &model.RawRecord{SampleID: "s2"})
	assert.Nil(t, p)
	var je *InconsistentJoinError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, model.TrackQC, je.Track)
	assert.Equal(t, "missing track document", je.Reason)
}
