package waterfall

import "github.com/sells-group/space-cli/internal/model"

// Chain is the ordered resolution policy for one field.
type Chain[In, T any] struct {
	FieldKey  string
	Resolvers []Resolver[In, T]
	// Default is returned, with source "default", when no resolver matches.
	Default T
}

// NewChain builds a chain for fieldKey.
func NewChain[In, T any](fieldKey string, def T, resolvers ...Resolver[In, T]) Chain[In, T] {
	return Chain[In, T]{FieldKey: fieldKey, Resolvers: resolvers, Default: def}
}

// Resolve walks the resolvers in order. Resolution stops at the first
// resolver that matches; resolvers after it are never called.
func (c Chain[In, T]) Resolve(in In) Resolution[T] {
	res := Resolution[T]{FieldKey: c.FieldKey}
	for _, r := range c.Resolvers {
		v, ok := r.Resolve(in)
		res.Attempts = append(res.Attempts, model.ProvenanceAttempt{Source: r.Name, Matched: ok})
		if ok {
			res.Value = v
			res.Resolved = true
			res.Winner = r.Name
			return res
		}
	}
	res.Value = c.Default
	res.Attempts = append(res.Attempts, model.ProvenanceAttempt{Source: model.SourceDefault, Matched: true})
	return res
}

// Names returns the resolver names in priority order.
func (c Chain[In, T]) Names() []string {
	out := make([]string, 0, len(c.Resolvers))
	for _, r := range c.Resolvers {
		out = append(out, r.Name)
	}
	return out
}

// Extend returns a copy of c with extra resolvers appended after the
// existing ones. The receiver is not modified.
func (c Chain[In, T]) Extend(resolvers ...Resolver[In, T]) Chain[In, T] {
	out := Chain[In, T]{FieldKey: c.FieldKey, Default: c.Default}
	out.Resolvers = append(append([]Resolver[In, T]{}, c.Resolvers...), resolvers...)
	return out
}
