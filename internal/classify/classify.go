// Package classify merges normalized metadata with the joined track
// partials into one immutable ClassifiedRecord per sample.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/space-cli/internal/extract"
	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/track"
	"github.com/sells-group/space-cli/internal/waterfall"
)

// Classifier-stage resolver names recorded in provenance.
const (
	SourceSyntheticOri  = "engineered.synthetic_ori"
	SourceOriginTable   = "engineered.origin_table"
	SourceKeywords      = "engineered.keywords"
	SourcePredictedHost = "natural.predicted_host"
)

// stage is the input of classifier-stage resolvers.
type stage struct {
	md  *model.NormalizedMetadata
	eng model.EngineeredPartial
	nat model.NaturalPartial
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithIDFunc sets the record ID generator.
func WithIDFunc(fn func() string) Option {
	return func(c *Classifier) { c.newID = fn }
}

// WithClock sets the clock used for ClassifiedAt.
func WithClock(fn func() time.Time) Option {
	return func(c *Classifier) { c.now = fn }
}

// Classifier builds ClassifiedRecords. It is stateless apart from its
// options and safe for concurrent use when they are.
type Classifier struct {
	newID func() string
	now   func() time.Time

	topology    waterfall.Resolver[stage, model.Topology]
	copyNumber  waterfall.Resolver[stage, model.CopyNumber]
	plasmidType waterfall.Resolver[stage, model.PlasmidType]
	host        waterfall.Resolver[stage, string]
}

// New creates a Classifier. IDs default to random UUIDs and the clock to
// time.Now.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
		topology: waterfall.Resolver[stage, model.Topology]{
			Name: SourceSyntheticOri,
			Resolve: func(s stage) (model.Topology, bool) {
				return model.TopologyCircular, s.eng.HasSyntheticOri
			},
		},
		copyNumber: waterfall.Resolver[stage, model.CopyNumber]{
			Name: SourceOriginTable,
			Resolve: func(s stage) (model.CopyNumber, bool) {
				return extract.CopyNumberForOrigins(s.eng.OriginNames)
			},
		},
		plasmidType: waterfall.Resolver[stage, model.PlasmidType]{
			Name: SourceKeywords,
			Resolve: func(s stage) (model.PlasmidType, bool) {
				text := strings.Join(append(append([]string{s.md.Description}, s.eng.OriginNames...), s.eng.MarkerNames...), " ")
				name, ok := extract.PlasmidTypeMatcher().First(text)
				return model.PlasmidType(name), ok
			},
		},
		host: waterfall.Resolver[stage, string]{
			Name: SourcePredictedHost,
			Resolve: func(s stage) (string, bool) {
				h := strings.TrimSpace(s.nat.PredictedHost)
				return h, h != ""
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify joins md with the partials in set. A missing or mismatched
// partial is an InconsistentJoinError; otherwise it cannot fail.
func (c *Classifier) Classify(rec *model.RawRecord, md model.NormalizedMetadata, set *track.Set) (model.ClassifiedRecord, error) {
	if set == nil {
		set = track.NewSet(rec.SampleID)
	}
	if set.SampleID != rec.SampleID {
		return model.ClassifiedRecord{}, track.NewInconsistentJoinError(rec.SampleID, "", "track set belongs to sample "+set.SampleID)
	}
	eng, err := set.Engineered()
	if err != nil {
		return model.ClassifiedRecord{}, err
	}
	nat, err := set.Natural()
	if err != nil {
		return model.ClassifiedRecord{}, err
	}
	qc, err := set.QC()
	if err != nil {
		return model.ClassifiedRecord{}, err
	}

	md = cloneMetadata(md)
	in := stage{md: &md, eng: eng, nat: nat}
	md.Topology = complete(&md, model.FieldTopology, md.Topology, c.topology, in)
	md.CopyNumber = complete(&md, model.FieldCopyNumber, md.CopyNumber, c.copyNumber, in)
	md.PlasmidType = complete(&md, model.FieldPlasmidType, md.PlasmidType, c.plasmidType, in)
	md.Host = complete(&md, model.FieldHost, md.Host, c.host, in)

	class := model.ClassNatural
	if eng.HasSyntheticOri {
		class = model.ClassEngineered
	}

	origins := append([]string{}, eng.OriginNames...)
	return model.ClassifiedRecord{
		ID:             c.newID(),
		SampleID:       rec.SampleID,
		SeqHash:        SeqHash(rec.Sequence),
		Length:         len(rec.Sequence),
		Sequence:       rec.Sequence,
		Classification: class,
		Topology:       md.Topology,
		CopyNumber:     md.CopyNumber,
		PlasmidType:    md.PlasmidType,
		Host:           md.Host,
		Origins:        origins,
		Features:       model.Features{Engineered: eng, Natural: nat, QC: qc},
		Metadata:       md,
		ClassifiedAt:   c.now().UTC(),
	}, nil
}

// complete re-resolves a field the extractor left at its default. The
// classifier attempts are spliced into the field's provenance ahead of the
// default entry.
func complete[T any](md *model.NormalizedMetadata, field string, current T, r waterfall.Resolver[stage, T], in stage) T {
	if !md.Defaulted(field) {
		return current
	}
	res := waterfall.NewChain(field, current, r).Resolve(in)

	prior := md.Provenance[field]
	attempts := make([]model.ProvenanceAttempt, 0, len(prior.Attempts)+len(res.Attempts))
	for _, a := range prior.Attempts {
		if a.Source != model.SourceDefault {
			attempts = append(attempts, a)
		}
	}
	attempts = append(attempts, res.Attempts...)

	src := res.Source()
	src.Attempts = attempts
	md.Provenance[field] = src
	return res.Value
}

// cloneMetadata copies the provenance map so the caller's value is never
// mutated.
func cloneMetadata(md model.NormalizedMetadata) model.NormalizedMetadata {
	prov := make(map[string]model.FieldSource, len(md.Provenance))
	for k, v := range md.Provenance {
		prov[k] = v
	}
	md.Provenance = prov
	return md
}

// SeqHash is the hex SHA-256 of the upper-cased sequence.
func SeqHash(seq string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(seq)))
	return hex.EncodeToString(sum[:])
}
