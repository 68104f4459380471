package parser

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/space-cli/internal/model"
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SampleID derives the sample identifier from a source path: the recognized
// extension is stripped, then every character outside [A-Za-z0-9_.-] is
// replaced with "_". Unrecognized extensions are kept as part of the id.
func SampleID(path string) string {
	base := filepath.Base(path)
	if _, ext, ok := detectExt(base); ok {
		base = base[:len(base)-len(ext)]
	}
	return unsafeIDChars.ReplaceAllString(base, "_")
}

// Registry tracks which source path claimed each sample id within a run.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	owners     map[string]string
	collisions map[string][]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:     make(map[string]string),
		collisions: make(map[string][]string),
	}
}

// Claim registers path under its derived sample id. The first path to claim
// an id owns it; a later, different path gets a MalformedInputError wrapping
// ErrSampleIDCollision. Claiming the same path twice is not a collision.
func (r *Registry) Claim(path string) (string, error) {
	id := SampleID(path)
	clean := filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		r.owners[id] = clean
		return id, nil
	}
	if owner == clean {
		return id, nil
	}
	if len(r.collisions[id]) == 0 {
		r.collisions[id] = []string{owner}
	}
	r.collisions[id] = append(r.collisions[id], clean)
	return id, NewMalformedInputError(id, path, "sample id already claimed by "+owner, ErrSampleIDCollision)
}

// Collisions returns every id claimed by more than one path, sorted by id.
func (r *Registry) Collisions() []model.SampleIDCollision {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.SampleIDCollision, 0, len(r.collisions))
	for id, paths := range r.collisions {
		out = append(out, model.SampleIDCollision{SampleID: id, Paths: append([]string(nil), paths...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleID < out[j].SampleID })
	return out
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
