package model

// LengthStats summarizes sequence lengths of written rows.
type LengthStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// DroppedDuplicate identifies a record collapsed into an earlier one.
type DroppedDuplicate struct {
	ID       string `json:"id"`
	SampleID string `json:"sample_id"`
	SeqHash  string `json:"seq_hash"`
	KeptID   string `json:"kept_id"`
}

// RejectedRecord identifies a sample excluded from the table.
type RejectedRecord struct {
	SampleID string        `json:"sample_id"`
	Path     string        `json:"path,omitempty"`
	Category ErrorCategory `json:"category"`
	Reason   string        `json:"reason"`
}

// SampleIDCollision lists source paths that sanitized to the same sample id.
type SampleIDCollision struct {
	SampleID string   `json:"sample_id"`
	Paths    []string `json:"paths"`
}

// Summary is the aggregate report written next to the golden table.
type Summary struct {
	TotalRecords int `json:"total_records"`
	Written      int `json:"written"`
	Duplicates   int `json:"duplicates"`
	Rejected     int `json:"rejected"`

	SkippedTracks map[TrackKind]int `json:"skipped_tracks"`

	ClassificationCounts map[string]int `json:"classification_counts"`
	PlasmidTypeCounts    map[string]int `json:"plasmid_type_counts"`
	CopyNumberCounts     map[string]int `json:"copy_number_counts"`
	TopologyCounts       map[string]int `json:"topology_counts"`
	LengthStats          LengthStats    `json:"length_stats"`

	DroppedDuplicates  []DroppedDuplicate  `json:"dropped_duplicates"`
	RejectedRecords    []RejectedRecord    `json:"rejected_records"`
	SampleIDCollisions []SampleIDCollision `json:"sample_id_collisions"`
	TableLocation      string              `json:"table_location,omitempty"`
}

// NewSummary returns a Summary with every map and list initialized so the
// JSON document never carries nulls.
func NewSummary() *Summary {
	return &Summary{
		SkippedTracks:        map[TrackKind]int{},
		ClassificationCounts: map[string]int{},
		PlasmidTypeCounts:    map[string]int{},
		CopyNumberCounts:     map[string]int{},
		TopologyCounts:       map[string]int{},
		DroppedDuplicates:    []DroppedDuplicate{},
		RejectedRecords:      []RejectedRecord{},
		SampleIDCollisions:   []SampleIDCollision{},
	}
}

// AddReject records a sample excluded before or during export.
func (s *Summary) AddReject(r RejectedRecord) {
	s.Rejected++
	s.RejectedRecords = append(s.RejectedRecords, r)
}
