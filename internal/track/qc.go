package track

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/space-cli/internal/model"
)

// QC heuristics follow DNA Chisel style synthesis checks.
const (
	homopolymerMin   = 5
	repeatUnitMin    = 2
	repeatUnitMax    = 10
	repeatCopiesMin  = 3
	complexityK      = 3
	gcWindow         = 50
	gcHighThreshold  = 0.70
	gcLowThreshold   = 0.30
	hairpinStem      = 6
	hairpinLoopMin   = 3
	hairpinLoopMax   = 8
	riskGCHigh       = 0.65
	riskGCLow        = 0.35
	riskExtremeLimit = 5
	riskHairpinLimit = 10
)

// QCNative computes the QC track from the sequence itself.
type QCNative struct{}

func (QCNative) Kind() model.TrackKind { return model.TrackQC }
func (QCNative) Name() string          { return "native" }

// Annotate never fails except on cancellation.
func (QCNative) Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := ComputeQC(rec.Sequence)
	p.SampleID = rec.SampleID
	return p, nil
}

// ComputeQC derives every QC metric for seq.
func ComputeQC(seq string) model.QCPartial {
	seq = strings.ToUpper(seq)

	gc := GCContent(seq)
	maxRun, runCount := Homopolymers(seq, homopolymerMin)
	repeatFrac := RepeatFraction(seq)
	extremes := GCExtremeRegions(seq, gcWindow)
	hairpins := Hairpins(seq)

	score, reasons := SynthesisRisk(gc, maxRun, repeatFrac, extremes, hairpins)
	return model.QCPartial{
		TrackStatus:          model.TrackStatus{Tool: "native"},
		GCContent:            gc,
		LinguisticComplexity: LinguisticComplexity(seq, complexityK),
		SynthesisRisk:        score,
		SynthesisRiskReasons: reasons,
		MaxHomopolymer:       maxRun,
		HomopolymerCount:     runCount,
		RepeatFraction:       repeatFrac,
		GCExtremeRegions:     extremes,
		HairpinEstimate:      hairpins,
	}
}

// GCContent is the G+C fraction of an upper-case sequence.
func GCContent(seq string) float64 {
	if seq == "" {
		return 0
	}
	return float64(strings.Count(seq, "G")+strings.Count(seq, "C")) / float64(len(seq))
}

func isBase(b byte) bool {
	return b == 'A' || b == 'C' || b == 'G' || b == 'T'
}

// Homopolymers returns the longest single-base run of at least minLen and
// how many such runs exist. Non-ACGT characters never form runs.
func Homopolymers(seq string, minLen int) (maxLen, count int) {
	for i := 0; i < len(seq); {
		b := seq[i]
		if !isBase(b) {
			i++
			continue
		}
		j := i + 1
		for j < len(seq) && seq[j] == b {
			j++
		}
		if n := j - i; n >= minLen {
			count++
			if n > maxLen {
				maxLen = n
			}
		}
		i = j
	}
	return maxLen, count
}

// RepeatFraction is the share of the sequence covered by simple tandem
// repeats: units of 2 to 10 bases occurring at least three times in a row.
// Each unit length is scanned independently, so overlapping repeats of
// different unit lengths are all counted.
func RepeatFraction(seq string) float64 {
	if seq == "" {
		return 0
	}
	total := 0
	for unit := repeatUnitMin; unit <= repeatUnitMax; unit++ {
		for i := 0; i <= len(seq)-unit*repeatCopiesMin; {
			u := seq[i : i+unit]
			copies := 1
			j := i + unit
			for j+unit <= len(seq) && seq[j:j+unit] == u {
				copies++
				j += unit
			}
			if copies >= repeatCopiesMin {
				total += copies * unit
				i = j
			} else {
				i++
			}
		}
	}
	return float64(total) / float64(len(seq))
}

// LinguisticComplexity is observed distinct ACGT k-mers over the number
// possible for the sequence length.
func LinguisticComplexity(seq string, k int) float64 {
	if len(seq) < k {
		return 0
	}
	seen := make(map[string]struct{})
outer:
	for i := 0; i+k <= len(seq); i++ {
		kmer := seq[i : i+k]
		for j := 0; j < k; j++ {
			if !isBase(kmer[j]) {
				continue outer
			}
		}
		seen[kmer] = struct{}{}
	}
	possible := min(int(math.Pow(4, float64(k))), len(seq)-k+1)
	if possible <= 0 {
		return 0
	}
	return float64(len(seen)) / float64(possible)
}

// GCExtremeRegions counts half-overlapping windows whose GC fraction is
// above 0.70 or below 0.30.
func GCExtremeRegions(seq string, window int) int {
	if len(seq) < window {
		return 0
	}
	step := window / 2
	n := 0
	for i := 0; i+window <= len(seq); i += step {
		gc := GCContent(seq[i : i+window])
		if gc > gcHighThreshold || gc < gcLowThreshold {
			n++
		}
	}
	return n
}

var complementBase = map[byte]byte{'A': 'T', 'T': 'A', 'G': 'C', 'C': 'G'}

// Hairpins estimates inverted repeats: a 6 base stem whose reverse
// complement follows after a 3 to 8 base loop. Each start position counts
// at most once.
func Hairpins(seq string) int {
	count := 0
	rc := make([]byte, hairpinStem)
	for i := 0; i < len(seq)-hairpinStem*2-hairpinLoopMin; i++ {
		stem := seq[i : i+hairpinStem]
		for k := 0; k < hairpinStem; k++ {
			c, ok := complementBase[stem[hairpinStem-1-k]]
			if !ok {
				c = 'N'
			}
			rc[k] = c
		}
		for loop := hairpinLoopMin; loop <= hairpinLoopMax; loop++ {
			j := i + hairpinStem + loop
			if j+hairpinStem > len(seq) {
				break
			}
			if seq[j:j+hairpinStem] == string(rc) {
				count++
				break
			}
		}
	}
	return count
}

// SynthesisRisk scores synthesis difficulty in [0, 1] with human-readable
// reasons for each contributing factor.
func SynthesisRisk(gc float64, maxHomopolymer int, repeatFrac float64, extremes, hairpins int) (float64, []string) {
	score := 0.0
	reasons := []string{}

	switch {
	case gc > riskGCHigh:
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("High GC content (%.1f%%)", gc*100))
	case gc < riskGCLow:
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("Low GC content (%.1f%%)", gc*100))
	}

	switch {
	case maxHomopolymer >= 8:
		score += 0.25
		reasons = append(reasons, fmt.Sprintf("Long homopolymer (%d bp)", maxHomopolymer))
	case maxHomopolymer >= 6:
		score += 0.10
		reasons = append(reasons, fmt.Sprintf("Moderate homopolymer (%d bp)", maxHomopolymer))
	}

	switch {
	case repeatFrac > 0.10:
		score += 0.20
		reasons = append(reasons, fmt.Sprintf("High repeat content (%.1f%%)", repeatFrac*100))
	case repeatFrac > 0.05:
		score += 0.10
		reasons = append(reasons, fmt.Sprintf("Moderate repeat content (%.1f%%)", repeatFrac*100))
	}

	if extremes > riskExtremeLimit {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("Many GC extreme regions (%d)", extremes))
	}
	if hairpins > riskHairpinLimit {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("Many potential hairpins (%d)", hairpins))
	}

	return math.Min(1, math.Max(0, score)), reasons
}

type qcDoc struct {
	SampleID             string   `json:"sample_id"`
	GCContent            float64  `json:"gc_content"`
	LinguisticComplexity float64  `json:"linguistic_complexity"`
	SynthesisRisk        float64  `json:"synthesis_risk"`
	SynthesisRiskReasons []string `json:"synthesis_risk_reasons"`
	HairpinEstimate      int      `json:"hairpin_estimate"`
	Homopolymers         struct {
		MaxLength int `json:"max_length"`
		Count     int `json:"count"`
	} `json:"homopolymers"`
	TandemRepeats struct {
		Fraction float64 `json:"fraction"`
	} `json:"tandem_repeats"`
	GCExtremes struct {
		High int `json:"high_gc_regions"`
		Low  int `json:"low_gc_regions"`
	} `json:"gc_extremes"`
	Error *string `json:"error"`
}

// QCFile reads precomputed QC documents from Dir.
type QCFile struct {
	Dir string
}

func (QCFile) Kind() model.TrackKind { return model.TrackQC }
func (QCFile) Name() string          { return "file" }

// Annotate loads <Dir>/<sample_id>.qc.json. A missing or corrupt document
// is an InconsistentJoinError.
func (a QCFile) Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := model.QCPartial{
		TrackStatus:          model.TrackStatus{SampleID: rec.SampleID, Tool: "seq_qc"},
		SynthesisRiskReasons: []string{},
	}
	var doc qcDoc
	if err := readJSON(DocPath(a.Dir, rec.SampleID, SuffixQC), &doc); err != nil {
		return nil, unreadableDoc(rec.SampleID, model.TrackQC, err)
	}
	if doc.SampleID != "" {
		p.SampleID = doc.SampleID
	}
	p.GCContent = doc.GCContent
	p.LinguisticComplexity = doc.LinguisticComplexity
	p.SynthesisRisk = doc.SynthesisRisk
	if doc.SynthesisRiskReasons != nil {
		p.SynthesisRiskReasons = doc.SynthesisRiskReasons
	}
	p.MaxHomopolymer = doc.Homopolymers.MaxLength
	p.HomopolymerCount = doc.Homopolymers.Count
	p.RepeatFraction = doc.TandemRepeats.Fraction
	p.GCExtremeRegions = doc.GCExtremes.High + doc.GCExtremes.Low
	p.HairpinEstimate = doc.HairpinEstimate
	p.Error = deref(doc.Error)
	return p, nil
}
