package model

import "time"

// Classification is the primary label of a plasmid.
type Classification string

const (
	ClassNatural    Classification = "Natural"
	ClassEngineered Classification = "Engineered"
)

// Features nests the full payload of every track.
type Features struct {
	Engineered EngineeredPartial `json:"engineered"`
	Natural    NaturalPartial    `json:"natural"`
	QC         QCPartial         `json:"qc"`
}

// ClassifiedRecord merges metadata and all track partials for one sample.
// It is created once by the classifier and never mutated afterwards.
type ClassifiedRecord struct {
	ID       string `json:"id"`
	SampleID string `json:"sample_id"`
	SeqHash  string `json:"seq_hash"`
	Length   int    `json:"length"`
	Sequence string `json:"sequence"`

	Classification Classification `json:"classification"`
	Topology       Topology       `json:"topology"`
	CopyNumber     CopyNumber     `json:"copy_number"`
	PlasmidType    PlasmidType    `json:"plasmid_type"`
	Host           string         `json:"host"`
	Origins        []string       `json:"origins"`

	Features Features           `json:"features"`
	Metadata NormalizedMetadata `json:"metadata"`

	ClassifiedAt time.Time `json:"classified_at"`
}

// GoldenTableRow is one persisted row of the final table. Nested objects are
// carried as JSON text so every table format shares one schema.
type GoldenTableRow struct {
	ID             string `json:"id" parquet:"id"`
	SampleID       string `json:"sample_id" parquet:"sample_id"`
	SeqHash        string `json:"seq_hash" parquet:"seq_hash"`
	Length         int64  `json:"length" parquet:"length"`
	Sequence       string `json:"sequence" parquet:"sequence"`
	Classification string `json:"classification" parquet:"classification"`
	Topology       string `json:"topology" parquet:"topology"`
	CopyNumber     string `json:"copy_number" parquet:"copy_number"`
	PlasmidType    string `json:"plasmid_type" parquet:"plasmid_type"`
	Host           string `json:"host" parquet:"host"`
	Origins        string `json:"origins" parquet:"origins"`
	Features       string `json:"features" parquet:"features"`
	Metadata       string `json:"metadata" parquet:"metadata"`
}

// GoldenColumns is the column order shared by every table writer.
var GoldenColumns = []string{
	"id", "sample_id", "seq_hash", "length", "sequence",
	"classification", "topology", "copy_number", "plasmid_type", "host",
	"origins", "features", "metadata",
}

// Values returns the row in GoldenColumns order.
func (r GoldenTableRow) Values() []any {
	return []any{
		r.ID, r.SampleID, r.SeqHash, r.Length, r.Sequence,
		r.Classification, r.Topology, r.CopyNumber, r.PlasmidType, r.Host,
		r.Origins, r.Features, r.Metadata,
	}
}
