package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Keyword boundaries follow \b: letters, digits and underscore are word
// characters, anything else separates tokens. "T7 promoter" matches t7;
// "T7express" and "T7_promoter" do not. Unlike RE2's ASCII-only \b, this
// also holds for non-ASCII letters.
const (
	boundaryStart = `(?:^|[^\p{L}\p{N}_])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}_])`
)

type compiledCategory struct {
	name string
	re   *regexp.Regexp
}

// Matcher performs word-boundary keyword matching over case-folded text.
// A Matcher is safe for concurrent use.
type Matcher struct {
	categories []compiledCategory
}

// NewMatcher compiles a vocabulary.
func NewMatcher(v Vocabulary) *Matcher {
	m := &Matcher{categories: make([]compiledCategory, 0, len(v))}
	for _, c := range v {
		alts := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			if kw = fold(kw); kw != "" {
				alts = append(alts, regexp.QuoteMeta(kw))
			}
		}
		if len(alts) == 0 {
			continue
		}
		re := regexp.MustCompile(boundaryStart + `(?:` + strings.Join(alts, "|") + `)` + boundaryEnd)
		m.categories = append(m.categories, compiledCategory{name: c.Name, re: re})
	}
	return m
}

// Match returns every category with at least one keyword in text, in
// vocabulary order.
func (m *Matcher) Match(text string) []string {
	text = fold(text)
	if text == "" {
		return nil
	}
	var out []string
	for _, c := range m.categories {
		if c.re.MatchString(text) {
			out = append(out, c.name)
		}
	}
	return out
}

// First returns the earliest category in vocabulary order that matches.
func (m *Matcher) First(text string) (string, bool) {
	text = fold(text)
	if text == "" {
		return "", false
	}
	for _, c := range m.categories {
		if c.re.MatchString(text) {
			return c.name, true
		}
	}
	return "", false
}

// Has reports whether category name matches text.
func (m *Matcher) Has(name, text string) bool {
	text = fold(text)
	for _, c := range m.categories {
		if c.name == name {
			return c.re.MatchString(text)
		}
	}
	return false
}

// fold case-folds s. A Caser carries state, so one is created per call.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

// Shared matchers for the built-in vocabularies.
var (
	resistanceMatcher  = NewMatcher(ResistanceMarkers)
	reporterMatcher    = NewMatcher(ReporterGenes)
	tagMatcher         = NewMatcher(ProteinTags)
	plasmidTypeMatcher = NewMatcher(PlasmidTypeKeywords)
	copyNumberMatcher  = NewMatcher(CopyNumberKeywords)
)

// PlasmidTypeMatcher returns the matcher for expression-system categories.
func PlasmidTypeMatcher() *Matcher { return plasmidTypeMatcher }

// CopyNumberMatcher returns the matcher for copy-number keywords.
func CopyNumberMatcher() *Matcher { return copyNumberMatcher }

// ResistanceMatcher returns the matcher for antibiotic resistance markers.
func ResistanceMatcher() *Matcher { return resistanceMatcher }
