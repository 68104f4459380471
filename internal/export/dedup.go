package export

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// ToRow flattens a ClassifiedRecord into its persisted table row. Nested
// values are encoded as JSON text.
func ToRow(rec model.ClassifiedRecord) (model.GoldenTableRow, error) {
	origins := rec.Origins
	if origins == nil {
		origins = []string{}
	}
	o, err := json.Marshal(origins)
	if err != nil {
		return model.GoldenTableRow{}, eris.Wrapf(err, "export: encode origins for %s", rec.SampleID)
	}
	f, err := json.Marshal(rec.Features)
	if err != nil {
		return model.GoldenTableRow{}, eris.Wrapf(err, "export: encode features for %s", rec.SampleID)
	}
	m, err := json.Marshal(rec.Metadata)
	if err != nil {
		return model.GoldenTableRow{}, eris.Wrapf(err, "export: encode metadata for %s", rec.SampleID)
	}
	return model.GoldenTableRow{
		ID:             rec.ID,
		SampleID:       rec.SampleID,
		SeqHash:        rec.SeqHash,
		Length:         int64(rec.Length),
		Sequence:       rec.Sequence,
		Classification: string(rec.Classification),
		Topology:       string(rec.Topology),
		CopyNumber:     string(rec.CopyNumber),
		PlasmidType:    string(rec.PlasmidType),
		Host:           rec.Host,
		Origins:        string(o),
		Features:       string(f),
		Metadata:       string(m),
	}, nil
}

// rejectReason returns why rec cannot be persisted, or "".
func rejectReason(rec model.ClassifiedRecord) string {
	switch {
	case rec.Classification == "":
		return "missing classification"
	case rec.SeqHash == "":
		return "missing seq_hash"
	case rec.Length <= 0:
		return "missing length"
	}
	return ""
}

// Collect sorts records by sample_id, drops rejects and seq_hash duplicates
// (first seen wins), and fills the row-level parts of summary. The input
// slice is not modified.
func Collect(records []model.ClassifiedRecord, summary *model.Summary) ([]model.GoldenTableRow, error) {
	sorted := append([]model.ClassifiedRecord{}, records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SampleID < sorted[j].SampleID })

	seen := make(map[string]string, len(sorted))
	rows := make([]model.GoldenTableRow, 0, len(sorted))
	lengths := make([]int, 0, len(sorted))
	for _, rec := range sorted {
		summary.TotalRecords++
		if reason := rejectReason(rec); reason != "" {
			summary.AddReject(model.RejectedRecord{SampleID: rec.SampleID, Category: model.ErrorCategoryRejected, Reason: reason})
			continue
		}
		if keptID, dup := seen[rec.SeqHash]; dup {
			summary.Duplicates++
			summary.DroppedDuplicates = append(summary.DroppedDuplicates, model.DroppedDuplicate{
				ID: rec.ID, SampleID: rec.SampleID, SeqHash: rec.SeqHash, KeptID: keptID,
			})
			continue
		}
		row, err := ToRow(rec)
		if err != nil {
			return nil, err
		}
		seen[rec.SeqHash] = rec.ID
		rows = append(rows, row)
		lengths = append(lengths, rec.Length)

		summary.ClassificationCounts[string(rec.Classification)]++
		summary.PlasmidTypeCounts[string(rec.PlasmidType)]++
		summary.CopyNumberCounts[string(rec.CopyNumber)]++
		summary.TopologyCounts[string(rec.Topology)]++
		for kind, n := range skippedTracks(rec) {
			summary.SkippedTracks[kind] += n
		}
	}
	summary.Written = len(rows)
	summary.LengthStats = lengthStats(lengths)
	return rows, nil
}

func skippedTracks(rec model.ClassifiedRecord) map[model.TrackKind]int {
	out := make(map[model.TrackKind]int, 3)
	if rec.Features.Engineered.Skipped {
		out[model.TrackEngineered]++
	}
	if rec.Features.Natural.Skipped {
		out[model.TrackNatural]++
	}
	if rec.Features.QC.Skipped {
		out[model.TrackQC]++
	}
	return out
}

func lengthStats(lengths []int) model.LengthStats {
	if len(lengths) == 0 {
		return model.LengthStats{}
	}
	s := append([]int{}, lengths...)
	sort.Ints(s)
	total := 0
	for _, n := range s {
		total += n
	}
	var median float64
	if mid := len(s) / 2; len(s)%2 == 1 {
		median = float64(s[mid])
	} else {
		median = float64(s[mid-1]+s[mid]) / 2
	}
	return model.LengthStats{
		Min:    s[0],
		Max:    s[len(s)-1],
		Mean:   float64(total) / float64(len(s)),
		Median: median,
	}
}
