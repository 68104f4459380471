package track

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// amrList accepts amr_genes either as gene-name strings or as detail objects.
type amrList []model.AMRGene

func (l *amrList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(amrList, 0, len(raw))
	for _, el := range raw {
		el = bytes.TrimSpace(el)
		if len(el) > 0 && el[0] == '"' {
			var name string
			if err := json.Unmarshal(el, &name); err != nil {
				return err
			}
			out = append(out, model.AMRGene{Gene: name})
			continue
		}
		var g model.AMRGene
		if err := json.Unmarshal(el, &g); err != nil {
			return err
		}
		out = append(out, g)
	}
	*l = out
	return nil
}

// nameList accepts a list of strings or of objects carrying gene/product.
type nameList []string

func (l *nameList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(nameList, 0, len(raw))
	for _, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Gene    string `json:"gene"`
			Product string `json:"product"`
		}
		if err := json.Unmarshal(el, &obj); err != nil {
			return err
		}
		if obj.Gene != "" {
			out = append(out, obj.Gene)
		} else {
			out = append(out, obj.Product)
		}
	}
	*l = out
	return nil
}

type naturalDoc struct {
	SampleID          string   `json:"sample_id"`
	AMRGenes          amrList  `json:"amr_genes"`
	AMRGeneNames      []string `json:"amr_gene_names"`
	VirulenceFactors  nameList `json:"virulence_factors"`
	CDSCount          int      `json:"cds_count"`
	CodingDensity     float64  `json:"coding_density"`
	Mobility          *string  `json:"mobility"`
	PredictedMobility *string  `json:"predicted_mobility"`
	RepliconType      *string  `json:"replicon_type"`
	RelaxaseType      *string  `json:"relaxase_type"`
	PredictedHost     *string  `json:"predicted_host"`
	PTU               *string  `json:"ptu"`
	HostRange         *string  `json:"host_range"`
	Error             *string  `json:"error"`
}

// NaturalFile reads the natural track from Dir: either a combined
// <sample_id>.natural.json, or the raw Bakta GFF3, MOB-suite and COPLA
// reports, which are parsed natively.
type NaturalFile struct {
	Dir string
}

func (NaturalFile) Kind() model.TrackKind { return model.TrackNatural }
func (NaturalFile) Name() string          { return "file" }

// Annotate prefers the combined JSON document. When it is absent, whichever
// raw reports exist are parsed. A corrupt document or report, or no source
// at all, is an InconsistentJoinError.
func (a NaturalFile) Annotate(ctx context.Context, rec *model.RawRecord) (model.Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := NewNaturalPartial(rec.SampleID)

	var doc naturalDoc
	err := readJSON(DocPath(a.Dir, rec.SampleID, SuffixNatural), &doc)
	switch {
	case err == nil:
		fromNaturalDoc(&p, doc)
		return p, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, unreadableDoc(rec.SampleID, model.TrackNatural, err)
	}

	found, scanErr := ScanNatural(&p, ReportsIn(a.Dir, rec.SampleID))
	if scanErr != nil {
		return nil, unreadableDoc(rec.SampleID, model.TrackNatural, scanErr)
	}
	if !found {
		return nil, unreadableDoc(rec.SampleID, model.TrackNatural, err)
	}
	return p, nil
}

func fromNaturalDoc(p *model.NaturalPartial, doc naturalDoc) {
	if doc.SampleID != "" {
		p.SampleID = doc.SampleID
	}
	p.AMRDetails = []model.AMRGene(doc.AMRGenes)
	if len(doc.AMRGeneNames) > 0 {
		p.AMRGenes = append(p.AMRGenes, doc.AMRGeneNames...)
	} else {
		for _, g := range doc.AMRGenes {
			p.AMRGenes = append(p.AMRGenes, g.Gene)
		}
	}
	p.VirulenceFactors = []string(doc.VirulenceFactors)
	p.CDSCount = doc.CDSCount
	p.CodingDensity = doc.CodingDensity
	p.Mobility = deref(doc.Mobility)
	p.PredictedMobility = deref(doc.PredictedMobility)
	p.RepliconType = deref(doc.RepliconType)
	p.RelaxaseType = deref(doc.RelaxaseType)
	p.PredictedHost = deref(doc.PredictedHost)
	p.PTU = deref(doc.PTU)
	p.HostRange = deref(doc.HostRange)
	p.Error = deref(doc.Error)
}

// NaturalReports names the raw tool reports of one sample. Empty or missing
// paths are skipped.
type NaturalReports struct {
	Bakta    string
	MobTyper string
	Copla    string
}

// ReportsIn returns the conventional report paths for sampleID under dir.
func ReportsIn(dir, sampleID string) NaturalReports {
	return NaturalReports{
		Bakta:    DocPath(dir, sampleID, SuffixBakta),
		MobTyper: DocPath(dir, sampleID, SuffixMobTyper),
		Copla:    DocPath(dir, sampleID, SuffixCopla),
	}
}

// NewNaturalPartial returns an empty natural partial for sampleID.
func NewNaturalPartial(sampleID string) model.NaturalPartial {
	return model.NaturalPartial{
		TrackStatus: model.TrackStatus{SampleID: sampleID, Tool: "bakta+mobsuite+copla"},
		AMRGenes:    []string{},
	}
}

// ScanNatural fills p from whichever reports exist. found is false when
// none of them does.
func ScanNatural(p *model.NaturalPartial, r NaturalReports) (found bool, err error) {
	if f, ok, err := open(r.Bakta); err != nil {
		return true, err
	} else if ok {
		found = true
		bakta, err := ParseBaktaGFF(f)
		_ = f.Close()
		if err != nil {
			return true, err
		}
		p.AMRDetails = bakta.AMRGenes
		for _, g := range bakta.AMRGenes {
			p.AMRGenes = append(p.AMRGenes, g.Gene)
		}
		p.VirulenceFactors = bakta.VirulenceFactors
		p.CDSCount = bakta.CDSCount
		p.CodingDensity = bakta.CodingDensity
	}

	if f, ok, err := open(r.MobTyper); err != nil {
		return true, err
	} else if ok {
		found = true
		mob, err := ParseMobTyper(f)
		_ = f.Close()
		if err != nil {
			return true, err
		}
		p.RepliconType = mob.RepliconType
		p.RelaxaseType = mob.RelaxaseType
		p.PredictedMobility = mob.PredictedMobility
		p.Mobility = mob.Mobility
	}

	if f, ok, err := open(r.Copla); err != nil {
		return true, err
	} else if ok {
		found = true
		copla, err := ParseCopla(f)
		_ = f.Close()
		if err != nil {
			return true, err
		}
		p.PredictedHost = copla.PredictedHost
		p.PTU = copla.PTU
		p.HostRange = copla.HostRange
	}
	return found, nil
}

func open(path string) (*os.File, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "track: open %s", path)
	}
	return f, true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
