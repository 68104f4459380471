// Package extract derives normalized plasmid metadata from parsed records.
// Each field is resolved by an ordered chain of named resolvers; the first
// resolver that yields a value wins and the chain is recorded as provenance.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/waterfall"
)

// Resolver names recorded in provenance.
const (
	SourceLocusTopology  = "annotation.locus"
	SourceBulkTopology   = "bulk.topology"
	SourceBulkCopyNumber = "bulk.copy_number"
	SourceCopyKeywords   = "annotation.keywords"
	SourceOriginTable    = "origin.table"
	SourceBulkType       = "bulk.vector_type"
	SourceTypeKeywords   = "annotation.keywords"
	SourceHost           = "annotation.host"
	SourceLabHost        = "annotation.lab_host"
	SourceBulkHost       = "bulk.host"
	SourceBulkList       = "bulk.field"
	SourceFeatures       = "annotation.features"
)

// view is the resolver input: a record plus the bulk columns mapped from it.
type view struct {
	rec         *model.RawRecord
	bulk        map[string]any
	description string
	originNames []string
}

// Extractor turns RawRecords into NormalizedMetadata. The zero value is not
// usable; call New.
type Extractor struct {
	topology    waterfall.Chain[*view, model.Topology]
	copyNumber  waterfall.Chain[*view, model.CopyNumber]
	plasmidType waterfall.Chain[*view, model.PlasmidType]
	host        waterfall.Chain[*view, string]
	resistance  waterfall.Chain[*view, []string]
	reporters   waterfall.Chain[*view, []string]
	tags        waterfall.Chain[*view, []string]
}

// New builds an Extractor with the standard resolver chains.
func New() *Extractor {
	return &Extractor{
		topology: waterfall.NewChain(model.FieldTopology, model.TopologyCircular,
			waterfall.Resolver[*view, model.Topology]{Name: SourceLocusTopology, Resolve: locusTopology},
			waterfall.Resolver[*view, model.Topology]{Name: SourceBulkTopology, Resolve: bulkTopology},
		),
		copyNumber: waterfall.NewChain(model.FieldCopyNumber, model.CopyNumberUnknown,
			waterfall.Resolver[*view, model.CopyNumber]{Name: SourceBulkCopyNumber, Resolve: bulkCopyNumber},
			waterfall.Resolver[*view, model.CopyNumber]{Name: SourceCopyKeywords, Resolve: copyNumberKeywords},
			waterfall.Resolver[*view, model.CopyNumber]{Name: SourceOriginTable, Resolve: originTableCopyNumber},
		),
		plasmidType: waterfall.NewChain(model.FieldPlasmidType, model.PlasmidTypeUnknown,
			waterfall.Resolver[*view, model.PlasmidType]{Name: SourceBulkType, Resolve: bulkPlasmidType},
			waterfall.Resolver[*view, model.PlasmidType]{Name: SourceTypeKeywords, Resolve: plasmidTypeKeywords},
		),
		host: waterfall.NewChain(model.FieldHost, model.Unknown,
			waterfall.Resolver[*view, string]{Name: SourceHost, Resolve: sourceQualifier("host")},
			waterfall.Resolver[*view, string]{Name: SourceLabHost, Resolve: sourceQualifier("lab_host")},
			waterfall.Resolver[*view, string]{Name: SourceBulkHost, Resolve: bulkString(BulkHost)},
		),
		resistance: listChain(model.FieldResistance, BulkResistance, resistanceMatcher, featureText{
			types: []string{"CDS", "gene"}, qualifiers: []string{"product", "gene", "note", "locus_tag"},
		}),
		reporters: listChain(model.FieldReporters, BulkReporters, reporterMatcher, featureText{
			types: []string{"CDS", "gene"}, qualifiers: []string{"product", "gene", "note"},
		}),
		tags: listChain(model.FieldTags, BulkTags, tagMatcher, featureText{
			types: []string{"CDS"}, qualifiers: []string{"product", "gene", "note"},
		}),
	}
}

// Extract derives NormalizedMetadata from rec. It never fails: fields no
// resolver can fill carry their documented default.
func (e *Extractor) Extract(rec *model.RawRecord) model.NormalizedMetadata {
	if rec == nil {
		rec = &model.RawRecord{}
	}
	v := newView(rec)

	md := model.NormalizedMetadata{
		SampleID:        rec.SampleID,
		Organism:        rec.Organism,
		Description:     v.description,
		OriginalID:      rec.OriginalID,
		OriginalName:    rec.OriginalName,
		GCContent:       GCContent(rec.Sequence),
		OriginNames:     v.originNames,
		GenBankFeatures: append([]model.Feature{}, rec.Features...),
		Provenance:      make(map[string]model.FieldSource, 7),
	}
	if rec.SourcePath != "" {
		md.Filename = filepath.Base(rec.SourcePath)
	}
	for _, f := range rec.Features {
		switch f.Type {
		case "CDS":
			md.CDSCount++
		case "gene":
			md.GeneCount++
		case "rep_origin":
			md.HasOrigin = true
		}
	}

	if v.bulk != nil {
		_, md.Annotations = MapBulk(rec.RawAnnotations)
		if s := stringValue(v.bulk[BulkOrganism]); s != "" {
			md.Organism = s
		}
		if s := stringValue(v.bulk[BulkOriginalID]); s != "" {
			md.OriginalID = s
		}
		md.HasOrigin = md.HasOrigin || len(v.originNames) > 0
	} else {
		md.Annotations = copyAnnotations(rec.RawAnnotations)
	}

	topo := e.topology.Resolve(v)
	md.Topology = topo.Value
	md.Provenance[model.FieldTopology] = topo.Source()

	cn := e.copyNumber.Resolve(v)
	md.CopyNumber = cn.Value
	md.Provenance[model.FieldCopyNumber] = cn.Source()

	pt := e.plasmidType.Resolve(v)
	md.PlasmidType = pt.Value
	md.Provenance[model.FieldPlasmidType] = pt.Source()

	host := e.host.Resolve(v)
	md.Host = host.Value
	md.Provenance[model.FieldHost] = host.Source()

	res := e.resistance.Resolve(v)
	md.ResistanceMarkers = res.Value
	md.Provenance[model.FieldResistance] = res.Source()

	rep := e.reporters.Resolve(v)
	md.ReporterGenes = rep.Value
	md.Provenance[model.FieldReporters] = rep.Source()

	tags := e.tags.Resolve(v)
	md.Tags = tags.Value
	md.Provenance[model.FieldTags] = tags.Source()

	return md
}

func newView(rec *model.RawRecord) *view {
	v := &view{rec: rec, description: rec.Description}
	if rec.SourceFormat == model.FormatBulkJSON {
		v.bulk, _ = MapBulk(rec.RawAnnotations)
		if d := stringValue(v.bulk[BulkDescription]); d != "" {
			v.description = d
		}
		v.originNames = listValue(v.bulk[BulkOrigins])
	} else {
		v.originNames = annotatedOriginNames(rec)
	}
	return v
}

// annotatedOriginNames collects the labels of rep_origin features.
func annotatedOriginNames(rec *model.RawRecord) []string {
	var names []string
	for _, f := range rec.FeaturesOfType("rep_origin") {
		for _, q := range []string{"label", "gene", "standard_name", "product", "note"} {
			if s := strings.TrimSpace(f.Qualifier(q)); s != "" {
				names = append(names, s)
				break
			}
		}
	}
	return names
}

func locusTopology(v *view) (model.Topology, bool) {
	if v.rec.SourceFormat != model.FormatGenBank {
		return "", false
	}
	return model.ParseTopology(v.rec.Topology)
}

func bulkTopology(v *view) (model.Topology, bool) {
	if v.bulk == nil {
		return "", false
	}
	return model.ParseTopology(stringValue(v.bulk[BulkTopology]))
}

func bulkCopyNumber(v *view) (model.CopyNumber, bool) {
	if v.bulk == nil {
		return "", false
	}
	return model.ParseCopyNumber(stringValue(v.bulk[BulkCopyNumber]))
}

// copyNumberText is the description plus the text of origin-like features.
func copyNumberText(v *view) string {
	parts := []string{v.description}
	for _, f := range v.rec.FeaturesOfType("rep_origin", "misc_feature") {
		parts = append(parts, f.Qualifier("product"), f.Qualifier("note"), f.Qualifier("label"))
	}
	return joinNonEmpty(parts)
}

func copyNumberKeywords(v *view) (model.CopyNumber, bool) {
	name, ok := copyNumberMatcher.First(copyNumberText(v))
	if !ok {
		return "", false
	}
	return model.CopyNumber(name), true
}

func originTableCopyNumber(v *view) (model.CopyNumber, bool) {
	return CopyNumberForOrigins(v.originNames)
}

func bulkPlasmidType(v *view) (model.PlasmidType, bool) {
	if v.bulk == nil {
		return "", false
	}
	return NormalizePlasmidType(stringValue(v.bulk[BulkPlasmidType]))
}

// NormalizePlasmidType maps free text onto the closed category set, either
// by exact category name or by keyword.
func NormalizePlasmidType(s string) (model.PlasmidType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if pt := model.PlasmidType(strings.ToLower(s)); pt != model.PlasmidTypeUnknown && pt.IsValid() {
		return pt, true
	}
	name, ok := plasmidTypeMatcher.First(s)
	if !ok {
		return "", false
	}
	return model.PlasmidType(name), true
}

// plasmidTypeText is description, keywords and comment, then the product,
// gene and note of every feature.
func plasmidTypeText(v *view) string {
	parts := []string{v.description, strings.Join(v.rec.Keywords, " "), v.rec.Comment}
	for _, f := range v.rec.Features {
		parts = append(parts, f.Qualifier("product"), f.Qualifier("gene"), f.Qualifier("note"))
	}
	return joinNonEmpty(parts)
}

func plasmidTypeKeywords(v *view) (model.PlasmidType, bool) {
	name, ok := plasmidTypeMatcher.First(plasmidTypeText(v))
	if !ok {
		return "", false
	}
	return model.PlasmidType(name), true
}

func sourceQualifier(key string) func(*view) (string, bool) {
	return func(v *view) (string, bool) {
		s := strings.TrimSpace(v.rec.SourceQualifiers[key])
		return s, s != ""
	}
}

func bulkString(column string) func(*view) (string, bool) {
	return func(v *view) (string, bool) {
		if v.bulk == nil {
			return "", false
		}
		s := stringValue(v.bulk[column])
		return s, s != ""
	}
}

// featureText selects which features and qualifiers feed a list field.
type featureText struct {
	types      []string
	qualifiers []string
}

func listChain(field, bulkColumn string, m *Matcher, ft featureText) waterfall.Chain[*view, []string] {
	return waterfall.NewChain(field, []string{},
		waterfall.Resolver[*view, []string]{
			Name: SourceBulkList,
			Resolve: func(v *view) ([]string, bool) {
				if v.bulk == nil {
					return nil, false
				}
				vals := normalizeList(listValue(v.bulk[bulkColumn]), m)
				return vals, len(vals) > 0
			},
		},
		waterfall.Resolver[*view, []string]{
			Name: SourceFeatures,
			Resolve: func(v *view) ([]string, bool) {
				set := map[string]struct{}{}
				for _, f := range v.rec.FeaturesOfType(ft.types...) {
					parts := make([]string, 0, len(ft.qualifiers))
					for _, q := range ft.qualifiers {
						parts = append(parts, f.Qualifier(q))
					}
					for _, hit := range m.Match(joinNonEmpty(parts)) {
						set[hit] = struct{}{}
					}
				}
				return sortedKeys(set), len(set) > 0
			},
		},
	)
}

// GCContent is the fraction of G and C over the whole sequence.
func GCContent(seq string) float64 {
	if seq == "" {
		return 0
	}
	gc := 0
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'G', 'C', 'g', 'c':
			gc++
		}
	}
	return float64(gc) / float64(len(seq))
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func copyAnnotations(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
