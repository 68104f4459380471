package model

// TrackKind names one of the three independent annotation tracks.
type TrackKind string

const (
	TrackEngineered TrackKind = "engineered"
	TrackNatural    TrackKind = "natural"
	TrackQC         TrackKind = "qc"
)

// TrackKinds lists every track a sample must carry before classification.
var TrackKinds = []TrackKind{TrackEngineered, TrackNatural, TrackQC}

// TrackStatus is common to every partial track record.
type TrackStatus struct {
	SampleID string `json:"sample_id"`
	Skipped  bool   `json:"skipped"`
	Tool     string `json:"tool,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Partial is a per-sample, per-track result.
type Partial interface {
	Kind() TrackKind
	Status() TrackStatus
}

// Origin is one detected origin of replication.
type Origin struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Start *int   `json:"start"`
	End   *int   `json:"end"`
}

// Marker is one detected selection marker.
type Marker struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// EngineeredPartial is the engineered-track result.
type EngineeredPartial struct {
	TrackStatus
	HasSyntheticOri bool     `json:"has_synthetic_ori"`
	Origins         []Origin `json:"origins"`
	Markers         []Marker `json:"markers"`
	OriginNames     []string `json:"origin_names"`
	MarkerNames     []string `json:"marker_names"`
}

func (EngineeredPartial) Kind() TrackKind       { return TrackEngineered }
func (p EngineeredPartial) Status() TrackStatus { return p.TrackStatus }

// AMRGene is an antimicrobial resistance hit from the natural track.
type AMRGene struct {
	Gene    string `json:"gene"`
	Product string `json:"product,omitempty"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// NaturalPartial is the natural-track result (annotation, mobility and host
// range tools).
type NaturalPartial struct {
	TrackStatus
	AMRGenes          []string  `json:"amr_genes"`
	AMRDetails        []AMRGene `json:"amr_details,omitempty"`
	VirulenceFactors  []string  `json:"virulence_factors,omitempty"`
	Mobility          string    `json:"mobility,omitempty"`
	PredictedMobility string    `json:"predicted_mobility,omitempty"`
	RepliconType      string    `json:"replicon_type,omitempty"`
	RelaxaseType      string    `json:"relaxase_type,omitempty"`
	PredictedHost     string    `json:"predicted_host,omitempty"`
	PTU               string    `json:"ptu,omitempty"`
	HostRange         string    `json:"host_range,omitempty"`
	CodingDensity     float64   `json:"coding_density"`
	CDSCount          int       `json:"cds_count"`
}

func (NaturalPartial) Kind() TrackKind       { return TrackNatural }
func (p NaturalPartial) Status() TrackStatus { return p.TrackStatus }

// QCPartial is the sequence quality track result.
type QCPartial struct {
	TrackStatus
	GCContent            float64  `json:"gc_content"`
	LinguisticComplexity float64  `json:"linguistic_complexity"`
	SynthesisRisk        float64  `json:"synthesis_risk"`
	SynthesisRiskReasons []string `json:"synthesis_risk_reasons"`
	MaxHomopolymer       int      `json:"max_homopolymer"`
	HomopolymerCount     int      `json:"homopolymer_count"`
	RepeatFraction       float64  `json:"repeat_fraction"`
	GCExtremeRegions     int      `json:"gc_extreme_regions"`
	HairpinEstimate      int      `json:"hairpin_estimate"`
}

func (QCPartial) Kind() TrackKind       { return TrackQC }
func (p QCPartial) Status() TrackStatus { return p.TrackStatus }
