package waterfall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/space-cli/internal/model"
)

func constant(name, v string, ok bool) Resolver[string, string] {
	return Resolver[string, string]{Name: name, Resolve: func(string) (string, bool) { return v, ok }}
}

func TestChain_FirstMatchWins(t *testing.T) {
	t.Parallel()

	c := NewChain("topology", "circular",
		constant("first", "", false),
		constant("second", "linear", true),
		constant("third", "circular", true),
	)

	res := c.Resolve("")
	assert.True(t, res.Resolved)
	assert.Equal(t, "linear", res.Value)
	assert.Equal(t, "second", res.Winner)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, model.ProvenanceAttempt{Source: "first", Matched: false}, res.Attempts[0])
	assert.Equal(t, model.ProvenanceAttempt{Source: "second", Matched: true}, res.Attempts[1])
	assert.Equal(t, "second", res.Source().Source)
}

func TestChain_StopsAfterWinner(t *testing.T) {
	t.Parallel()

	called := false
	c := NewChain("host", "unknown",
		constant("annotation", "E. coli", true),
		Resolver[string, string]{Name: "never", Resolve: func(string) (string, bool) {
			called = true
			return "x", true
		}},
	)
	res := c.Resolve("")
	assert.Equal(t, "E. coli", res.Value)
	assert.False(t, called)
}

func TestChain_Default(t *testing.T) {
	t.Parallel()

	c := NewChain("copy_number", "unknown", constant("keywords", "", false))
	res := c.Resolve("")
	assert.False(t, res.Resolved)
	assert.Equal(t, "unknown", res.Value)
	assert.Equal(t, model.SourceDefault, res.Source().Source)
	assert.Equal(t, []string{"keywords", model.SourceDefault}, res.Source().Tried())
}

func TestChain_UsesInput(t *testing.T) {
	t.Parallel()

	c := NewChain("upper", "", Resolver[string, string]{
		Name: "nonempty",
		Resolve: func(in string) (string, bool) {
			return in, in != ""
		},
	})
	assert.Equal(t, "abc", c.Resolve("abc").Value)
	assert.False(t, c.Resolve("").Resolved)
}

func TestChain_ExtendDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := NewChain("f", "d", constant("a", "", false))
	ext := base.Extend(constant("b", "v", true))

	assert.Equal(t, []string{"a"}, base.Names())
	assert.Equal(t, []string{"a", "b"}, ext.Names())
	assert.Equal(t, "d", base.Resolve("").Value)
	assert.Equal(t, "v", ext.Resolve("").Value)
}
