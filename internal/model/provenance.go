package model

// ProvenanceAttempt records one resolver consulted for a field.
type ProvenanceAttempt struct {
	Source  string `json:"source"`
	Matched bool   `json:"matched"`
}

// FieldSource records which named resolver produced a field value and which
// resolvers were consulted, in order, to get there.
type FieldSource struct {
	Source   string              `json:"source"`
	Attempts []ProvenanceAttempt `json:"attempts,omitempty"`
}

// Tried returns the names of every consulted resolver.
func (f FieldSource) Tried() []string {
	out := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		out = append(out, a.Source)
	}
	return out
}
