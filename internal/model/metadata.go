package model

import "strings"

// Unknown is the explicit default for every unresolved scalar field.
const Unknown = "unknown"

// Topology of a plasmid molecule.
type Topology string

const (
	TopologyCircular Topology = "circular"
	TopologyLinear   Topology = "linear"
	TopologyUnknown  Topology = Unknown
)

// ParseTopology normalizes free text into a Topology. ok is false when the
// text names no known topology.
func ParseTopology(s string) (Topology, bool) {
	switch normalizeToken(s) {
	case "circular", "circ", "c":
		return TopologyCircular, true
	case "linear", "lin", "l":
		return TopologyLinear, true
	}
	return TopologyUnknown, false
}

// CopyNumber class of a plasmid.
type CopyNumber string

const (
	CopyNumberHigh    CopyNumber = "high"
	CopyNumberMedium  CopyNumber = "medium"
	CopyNumberLow     CopyNumber = "low"
	CopyNumberUnknown CopyNumber = Unknown
)

// ParseCopyNumber normalizes free text into a CopyNumber.
func ParseCopyNumber(s string) (CopyNumber, bool) {
	switch normalizeToken(s) {
	case "high", "high copy", "high_copy", "high-copy":
		return CopyNumberHigh, true
	case "medium", "medium copy", "medium_copy", "medium-copy", "mid":
		return CopyNumberMedium, true
	case "low", "low copy", "low_copy", "low-copy", "single copy":
		return CopyNumberLow, true
	}
	return CopyNumberUnknown, false
}

// PlasmidType is an expression-system category.
type PlasmidType string

const (
	PlasmidTypeMammalian PlasmidType = "mammalian_expression"
	PlasmidTypeBacterial PlasmidType = "bacterial_expression"
	PlasmidTypeYeast     PlasmidType = "yeast_expression"
	PlasmidTypeLenti     PlasmidType = "lentiviral"
	PlasmidTypeCRISPR    PlasmidType = "crispr"
	PlasmidTypeCloning   PlasmidType = "cloning"
	PlasmidTypeInsect    PlasmidType = "insect_expression"
	PlasmidTypePlant     PlasmidType = "plant_expression"
	PlasmidTypeRetro     PlasmidType = "retroviral"
	PlasmidTypeAdeno     PlasmidType = "adenoviral"
	PlasmidTypeAAV       PlasmidType = "aav"
	PlasmidTypeShuttle   PlasmidType = "shuttle"
	PlasmidTypeUnknown   PlasmidType = Unknown
)

// PlasmidTypes lists every category in match priority order.
var PlasmidTypes = []PlasmidType{
	PlasmidTypeMammalian,
	PlasmidTypeBacterial,
	PlasmidTypeYeast,
	PlasmidTypeLenti,
	PlasmidTypeCRISPR,
	PlasmidTypeCloning,
	PlasmidTypeInsect,
	PlasmidTypePlant,
	PlasmidTypeRetro,
	PlasmidTypeAdeno,
	PlasmidTypeAAV,
	PlasmidTypeShuttle,
}

// IsValid reports whether p is a member of the closed set (unknown included).
func (p PlasmidType) IsValid() bool {
	if p == PlasmidTypeUnknown {
		return true
	}
	for _, t := range PlasmidTypes {
		if t == p {
			return true
		}
	}
	return false
}

// SourceDefault is the provenance name of a documented default value.
const SourceDefault = "default"

// Metadata field keys used in provenance maps.
const (
	FieldTopology    = "topology"
	FieldCopyNumber  = "copy_number"
	FieldPlasmidType = "plasmid_type"
	FieldHost        = "host"
	FieldResistance  = "resistance_markers"
	FieldReporters   = "reporter_genes"
	FieldTags        = "tags"
)

// NormalizedMetadata is the extractor output for one sample. Every field is
// always populated; "unknown" and empty slices are the explicit defaults.
type NormalizedMetadata struct {
	SampleID    string      `json:"sample_id"`
	Topology    Topology    `json:"topology"`
	CopyNumber  CopyNumber  `json:"copy_number"`
	PlasmidType PlasmidType `json:"plasmid_type"`
	Host        string      `json:"host"`

	ResistanceMarkers []string `json:"resistance_markers"`
	ReporterGenes     []string `json:"reporter_genes"`
	Tags              []string `json:"tags"`

	Organism     string  `json:"organism"`
	Description  string  `json:"description"`
	OriginalID   string  `json:"original_id"`
	OriginalName string  `json:"original_name"`
	Filename     string  `json:"filename"`
	GCContent    float64 `json:"gc_content"`
	CDSCount     int     `json:"cds_count"`
	GeneCount    int     `json:"gene_count"`
	HasOrigin    bool    `json:"has_origin"`
	// OriginNames are origin labels found in the record's own annotation.
	OriginNames []string `json:"origin_names"`

	GenBankFeatures []Feature      `json:"genbank_features"`
	Annotations     map[string]any `json:"annotations"`

	Provenance map[string]FieldSource `json:"provenance"`
}

// Defaulted reports whether field was filled by its documented default
// rather than by a resolver.
func (m *NormalizedMetadata) Defaulted(field string) bool {
	src, ok := m.Provenance[field]
	return !ok || src.Source == SourceDefault
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
