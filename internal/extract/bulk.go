package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Bulk-export columns produced by the field mapping.
const (
	BulkResistance  = "resistance_markers"
	BulkPlasmidType = "plasmid_type"
	BulkTopology    = "topology"
	BulkCopyNumber  = "copy_number"
	BulkHost        = "host"
	BulkReporters   = "reporter_genes"
	BulkTags        = "tags"
	BulkDescription = "description"
	BulkOrganism    = "organism"
	BulkOriginalID  = "original_id"
	BulkOrigins     = "origins"
)

// BulkField maps a set of export keys onto one normalized column. The first
// key present in a record wins; matching is case-insensitive.
type BulkField struct {
	Column string
	Keys   []string
}

// BulkFieldMap is the fixed mapping from bulk-export keys to columns.
var BulkFieldMap = []BulkField{
	{BulkResistance, []string{"resistance", "resistance_markers", "bacterial_resistance"}},
	{BulkPlasmidType, []string{"vector_type", "plasmid_type"}},
	{BulkTopology, []string{"topology"}},
	{BulkCopyNumber, []string{"copy_number"}},
	{BulkHost, []string{"host", "growth_strain", "lab_host"}},
	{BulkReporters, []string{"reporters", "reporter_genes"}},
	{BulkTags, []string{"tags"}},
	{BulkDescription, []string{"description", "name"}},
	{BulkOrganism, []string{"organism"}},
	{BulkOriginalID, []string{"id", "plasmid_id"}},
	{BulkOrigins, []string{"origin", "origins", "backbone_origin"}},
}

// MapBulk splits a bulk-export object into mapped columns and passthrough
// annotations. Every key not consumed by the mapping is returned verbatim
// in passthrough.
func MapBulk(raw map[string]any) (mapped map[string]any, passthrough map[string]any) {
	byLower := make(map[string]string, len(raw))
	for k := range raw {
		lk := strings.ToLower(k)
		// Deterministic choice when keys differ only by case.
		if prev, ok := byLower[lk]; !ok || k < prev {
			byLower[lk] = k
		}
	}

	mapped = make(map[string]any)
	consumed := make(map[string]bool)
	for _, f := range BulkFieldMap {
		for _, key := range f.Keys {
			orig, ok := byLower[key]
			if !ok || isEmptyValue(raw[orig]) {
				continue
			}
			mapped[f.Column] = raw[orig]
			consumed[orig] = true
			break
		}
	}

	passthrough = make(map[string]any, len(raw)-len(consumed))
	for k, v := range raw {
		if !consumed[k] {
			passthrough[k] = v
		}
	}
	return mapped, passthrough
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

var listSeparators = regexp.MustCompile(`[,;|]`)

// stringValue renders a scalar bulk value as text.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// listValue renders a bulk value as a list of non-empty strings. Strings are
// split on , ; and |.
func listValue(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			raw = append(raw, listValue(e)...)
		}
		return raw
	case []string:
		for _, e := range t {
			raw = append(raw, listValue(e)...)
		}
		return raw
	default:
		for _, p := range listSeparators.Split(stringValue(v), -1) {
			if p = strings.TrimSpace(p); p != "" {
				raw = append(raw, p)
			}
		}
	}
	return raw
}

// normalizeList maps each value through m; values that name no category are
// kept lower-cased. The result is sorted and de-duplicated.
func normalizeList(values []string, m *Matcher) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if hits := m.Match(v); len(hits) > 0 {
			for _, h := range hits {
				set[h] = struct{}{}
			}
			continue
		}
		set[strings.ToLower(v)] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
