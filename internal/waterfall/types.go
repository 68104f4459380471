// Package waterfall resolves a field by walking an ordered list of named
// resolvers; the first resolver that yields a value wins.
package waterfall

import "github.com/sells-group/space-cli/internal/model"

// Resolver is one named candidate source for a field. Resolve returns the
// candidate value and whether the source produced one.
type Resolver[In, T any] struct {
	Name    string
	Resolve func(in In) (T, bool)
}

// Resolution is the outcome of running a Chain.
type Resolution[T any] struct {
	FieldKey string
	Value    T
	Resolved bool
	Winner   string
	Attempts []model.ProvenanceAttempt
}

// Source converts the resolution into the provenance record stored on
// normalized metadata.
func (r Resolution[T]) Source() model.FieldSource {
	winner := r.Winner
	if !r.Resolved {
		winner = model.SourceDefault
	}
	return model.FieldSource{Source: winner, Attempts: r.Attempts}
}
