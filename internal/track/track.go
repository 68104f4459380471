// Package track produces the three per-sample annotation partials
// (engineered, natural, QC) and joins them for classification.
package track

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sells-group/space-cli/internal/model"
)

// Annotator produces one track partial for a parsed record.
type Annotator interface {
	Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error)
	Kind() model.TrackKind
	Name() string
}

// InconsistentJoinError reports a sample whose track partials cannot be
// joined: a partial is missing or belongs to another sample.
type InconsistentJoinError struct {
	SampleID string
	Track    model.TrackKind
	Reason   string
	Err      error
}

func (e *InconsistentJoinError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("track: inconsistent join for sample %q (%s): %s: %v", e.SampleID, e.Track, e.Reason, e.Err)
	}
	return fmt.Sprintf("track: inconsistent join for sample %q (%s): %s", e.SampleID, e.Track, e.Reason)
}

func (e *InconsistentJoinError) Unwrap() error { return e.Err }

// ErrorCategory reports how a run records this failure.
func (e *InconsistentJoinError) ErrorCategory() model.ErrorCategory {
	return model.ErrorCategoryJoin
}

// NewInconsistentJoinError builds an InconsistentJoinError.
func NewInconsistentJoinError(sampleID string, kind model.TrackKind, reason string) *InconsistentJoinError {
	return &InconsistentJoinError{SampleID: sampleID, Track: kind, Reason: reason}
}

// unreadableDoc reports a track document that is missing or does not decode
// into the track schema. The sample cannot be joined.
func unreadableDoc(sampleID string, kind model.TrackKind, err error) *InconsistentJoinError {
	reason := "unreadable track document"
	if errors.Is(err, fs.ErrNotExist) {
		reason = "missing track document"
	}
	return &InconsistentJoinError{SampleID: sampleID, Track: kind, Reason: reason, Err: err}
}

// IsInconsistentJoin reports whether err (or any error in its chain) is an
// InconsistentJoinError.
func IsInconsistentJoin(err error) bool {
	var je *InconsistentJoinError
	return errors.As(err, &je)
}

// Set joins the partials of one sample, keyed by track kind.
type Set struct {
	SampleID string
	partials map[model.TrackKind]model.Partial
}

// NewSet returns an empty join set for sampleID.
func NewSet(sampleID string) *Set {
	return &Set{SampleID: sampleID, partials: make(map[model.TrackKind]model.Partial, len(model.TrackKinds))}
}

// Put stores p under its own kind, replacing any earlier partial.
func (s *Set) Put(p model.Partial) {
	if p == nil {
		return
	}
	s.partials[p.Kind()] = p
}

// Get returns the partial for kind. A missing partial, or one carrying a
// different sample_id, is an InconsistentJoinError.
func (s *Set) Get(kind model.TrackKind) (model.Partial, error) {
	p, ok := s.partials[kind]
	if !ok {
		return nil, NewInconsistentJoinError(s.SampleID, kind, "missing partial")
	}
	if got := p.Status().SampleID; got != s.SampleID {
		return nil, NewInconsistentJoinError(s.SampleID, kind, fmt.Sprintf("partial belongs to sample %q", got))
	}
	return p, nil
}

// Engineered returns the typed engineered partial.
func (s *Set) Engineered() (model.EngineeredPartial, error) {
	p, err := s.Get(model.TrackEngineered)
	if err != nil {
		return model.EngineeredPartial{}, err
	}
	ep, ok := p.(model.EngineeredPartial)
	if !ok {
		return model.EngineeredPartial{}, NewInconsistentJoinError(s.SampleID, model.TrackEngineered, fmt.Sprintf("unexpected partial type %T", p))
	}
	return ep, nil
}

// Natural returns the typed natural partial.
func (s *Set) Natural() (model.NaturalPartial, error) {
	p, err := s.Get(model.TrackNatural)
	if err != nil {
		return model.NaturalPartial{}, err
	}
	np, ok := p.(model.NaturalPartial)
	if !ok {
		return model.NaturalPartial{}, NewInconsistentJoinError(s.SampleID, model.TrackNatural, fmt.Sprintf("unexpected partial type %T", p))
	}
	return np, nil
}

// QC returns the typed QC partial.
func (s *Set) QC() (model.QCPartial, error) {
	p, err := s.Get(model.TrackQC)
	if err != nil {
		return model.QCPartial{}, err
	}
	qp, ok := p.(model.QCPartial)
	if !ok {
		return model.QCPartial{}, NewInconsistentJoinError(s.SampleID, model.TrackQC, fmt.Sprintf("unexpected partial type %T", p))
	}
	return qp, nil
}

// Skipped returns well-formed placeholders for a disabled track.
type Skipped struct {
	Track model.TrackKind
}

func (s Skipped) Kind() model.TrackKind { return s.Track }
func (s Skipped) Name() string          { return "skipped" }

// Annotate returns the placeholder partial; it never fails.
func (s Skipped) Annotate(_ context.Context, rec *model.RawRecord) (model.Partial, error) {
	return Placeholder(s.Track, rec.SampleID), nil
}

// Placeholder is the skipped partial of kind for sampleID.
func Placeholder(kind model.TrackKind, sampleID string) model.Partial {
	st := model.TrackStatus{SampleID: sampleID, Skipped: true, Tool: "skipped"}
	switch kind {
	case model.TrackEngineered:
		return model.EngineeredPartial{TrackStatus: st, Origins: []model.Origin{}, Markers: []model.Marker{}, OriginNames: []string{}, MarkerNames: []string{}}
	case model.TrackNatural:
		return model.NaturalPartial{TrackStatus: st, AMRGenes: []string{}}
	default:
		return model.QCPartial{TrackStatus: st, SynthesisRiskReasons: []string{}}
	}
}

// Annotators holds the configured annotator of every track.
type Annotators map[model.TrackKind]Annotator

// Run annotates rec with every configured track and returns the joined set.
// A track with no configured annotator is simply absent from the set; Get
// reports it. Errors from an annotator abort the sample, and a file-backed
// annotator reports a missing or corrupt document as an InconsistentJoinError.
func (a Annotators) Run(ctx context.Context, rec *model.RawRecord) (*Set, error) {
	set := NewSet(rec.SampleID)
	for _, kind := range model.TrackKinds {
		ann, ok := a[kind]
		if !ok {
			continue
		}
		p, err := ann.Annotate(ctx, rec)
		if err != nil {
			return nil, err
		}
		set.Put(p)
	}
	return set, nil
}
