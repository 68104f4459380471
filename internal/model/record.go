package model

// SourceFormat identifies which parser produced a RawRecord.
type SourceFormat string

const (
	FormatGenBank  SourceFormat = "genbank"
	FormatBulkJSON SourceFormat = "bulk_json"
	FormatFASTA    SourceFormat = "fasta"
)

// Feature is one annotated interval from a GenBank feature table.
// Start is 0-based and End is exclusive.
type Feature struct {
	Type       string            `json:"type"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Strand     int               `json:"strand"`
	Qualifiers map[string]string `json:"qualifiers,omitempty"`
}

// Qualifier returns the value of the named qualifier, or "" when absent.
func (f Feature) Qualifier(key string) string {
	if f.Qualifiers == nil {
		return ""
	}
	return f.Qualifiers[key]
}

// Len returns the span of the feature in bases.
func (f Feature) Len() int {
	if f.End < f.Start {
		return 0
	}
	return f.End - f.Start
}

// RawRecord is the canonical parse result for one input unit.
type RawRecord struct {
	SampleID     string       `json:"sample_id"`
	SourcePath   string       `json:"source_path"`
	SourceFormat SourceFormat `json:"source_format"`
	Sequence     string       `json:"sequence"`

	OriginalID   string   `json:"original_id,omitempty"`
	OriginalName string   `json:"original_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Comment      string   `json:"comment,omitempty"`
	Organism     string   `json:"organism,omitempty"`
	// Topology is the explicit value declared by the record (LOCUS line or
	// bulk field). Empty when the record says nothing.
	Topology string `json:"topology,omitempty"`

	// SourceQualifiers holds the qualifiers of the GenBank "source" feature.
	SourceQualifiers map[string]string `json:"source_qualifiers,omitempty"`
	// Features excludes the "source" feature.
	Features []Feature `json:"features,omitempty"`

	RawAnnotations map[string]any `json:"raw_annotations"`
}

// FeaturesOfType returns the features whose type is one of types.
func (r *RawRecord) FeaturesOfType(types ...string) []Feature {
	var out []Feature
	for _, f := range r.Features {
		for _, t := range types {
			if f.Type == t {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
