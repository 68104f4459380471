package track

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

var (
	amrKeywords = []string{
		"resistance", "beta-lactam", "aminoglycoside", "tetracycline",
		"chloramphenicol", "macrolide", "quinolone", "sulfonamide",
		"bla", "aph", "aac", "tet", "cat", "erm", "qnr", "sul",
	}
	virulenceKeywords = []string{
		"virulence", "toxin", "adhesin", "invasin", "hemolysin",
		"enterotoxin", "exotoxin", "fimbr", "pilus", "secretion",
	}
)

// BaktaSummary is what the natural track keeps from a Bakta GFF3 file.
type BaktaSummary struct {
	AMRGenes         []model.AMRGene
	VirulenceFactors []string
	CDSCount         int
	GeneCount        int
	OriFeatures      int
	TotalFeatures    int
	CodingDensity    float64
}

// ParseBaktaGFF reads a Bakta GFF3 annotation. Total length comes from the
// ##sequence-region pragma; lines with fewer than nine columns are ignored.
func ParseBaktaGFF(r io.Reader) (BaktaSummary, error) {
	var (
		out          BaktaSummary
		totalLength  int
		codingLength int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "##sequence-region") {
				if parts := strings.Fields(line); len(parts) >= 4 {
					n, err := strconv.Atoi(parts[3])
					if err != nil {
						return out, eris.Wrapf(err, "track: bakta sequence-region %q", line)
					}
					totalLength = n
				}
			}
			// ##FASTA ends the feature section.
			if strings.HasPrefix(line, "##FASTA") {
				break
			}
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 9 {
			continue
		}
		out.TotalFeatures++
		start, err := strconv.Atoi(cols[3])
		if err != nil {
			return out, eris.Wrapf(err, "track: bakta feature start %q", cols[3])
		}
		end, err := strconv.Atoi(cols[4])
		if err != nil {
			return out, eris.Wrapf(err, "track: bakta feature end %q", cols[4])
		}
		attrs := gffAttributes(cols[8])

		switch cols[2] {
		case "CDS":
			out.CDSCount++
			codingLength += end - start + 1

			product := strings.ToLower(attrs["product"])
			gene := strings.ToLower(attrs["gene"])
			name := strings.ToLower(attrs["Name"])
			label := attrs["gene"]
			if label == "" {
				label = attrs["Name"]
			}
			if containsAny(amrKeywords, product, gene, name) {
				out.AMRGenes = append(out.AMRGenes, model.AMRGene{Gene: label, Product: attrs["product"], Start: start, End: end})
			}
			if containsAny(virulenceKeywords, product, gene) {
				vf := label
				if vf == "" {
					vf = attrs["product"]
				}
				out.VirulenceFactors = append(out.VirulenceFactors, vf)
			}
		case "gene":
			out.GeneCount++
		case "rep_origin", "oriV", "oriT":
			out.OriFeatures++
		}
	}
	if err := sc.Err(); err != nil {
		return out, eris.Wrap(err, "track: read bakta gff")
	}
	if totalLength > 0 {
		out.CodingDensity = float64(codingLength) / float64(totalLength)
	}
	return out, nil
}

func gffAttributes(s string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = v
	}
	return out
}

func containsAny(keywords []string, fields ...string) bool {
	for _, kw := range keywords {
		for _, f := range fields {
			if f != "" && strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

// MobTyperResult is the mobility typing of one plasmid.
type MobTyperResult struct {
	RepliconType      string
	RelaxaseType      string
	PredictedMobility string
	Mobility          string
}

// ParseMobTyper reads a MOB-suite mob_typer report (header plus one row).
func ParseMobTyper(r io.Reader) (MobTyperResult, error) {
	var out MobTyperResult
	row, err := readKeyedRow(r, func(first string) bool { return strings.HasPrefix(first, "#") })
	if err != nil || row == nil {
		return out, err
	}
	out.RepliconType = row.first("rep_type(s)", "replicon_type")
	out.RelaxaseType = row.first("relaxase_type(s)", "relaxase_type")
	out.PredictedMobility = row.first("predicted_mobility")
	out.Mobility = MobilityClass(out.PredictedMobility)
	return out, nil
}

// MobilityClass buckets a predicted mobility string.
func MobilityClass(predicted string) string {
	if predicted == "" {
		return ""
	}
	p := strings.ToLower(predicted)
	switch {
	case strings.Contains(p, "non-mobilizable"), strings.Contains(p, "non_mobilizable"):
		return "Non-mobilizable"
	case strings.Contains(p, "conjugative"):
		return "Conjugative"
	case strings.Contains(p, "mobilizable"):
		return "Mobilizable"
	default:
		return "Non-mobilizable"
	}
}

// CoplaResult is the host-range prediction of one plasmid.
type CoplaResult struct {
	PredictedHost string
	PTU           string
	HostRange     string
	Confidence    string
}

// ParseCopla reads a COPLA report. A comment-only report saying the tool
// was skipped yields an empty result.
func ParseCopla(r io.Reader) (CoplaResult, error) {
	var out CoplaResult
	row, err := readKeyedRow(r, func(first string) bool {
		return strings.HasPrefix(first, "#") && strings.Contains(strings.ToLower(first), "skipped")
	})
	if err != nil || row == nil {
		return out, err
	}
	out.PredictedHost = row.first("host", "predicted_host")
	out.PTU = row.first("ptu", "ptuid")
	out.HostRange = row.first("host_range")
	out.Confidence = row.first("confidence", "score")
	return out, nil
}

type keyedRow map[string]string

// first returns the value of the first key present and non-empty. "-" is
// the tools' placeholder for no value.
func (k keyedRow) first(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(k[key]); v != "" && v != "-" {
			return v
		}
	}
	return ""
}

// readKeyedRow reads a tab-separated header and first data row. Header keys
// are lower-cased with spaces replaced by underscores. A nil row with no
// error means the report is empty or was rejected by skip.
func readKeyedRow(r io.Reader, skip func(firstLine string) bool) (keyedRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "track: read tsv")
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	if first, _, _ := strings.Cut(content, "\n"); skip(first) {
		return nil, nil
	}

	cr := csv.NewReader(strings.NewReader(content))
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "track: read tsv header")
	}
	values, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "track: read tsv row")
	}

	row := make(keyedRow, len(header))
	for i, h := range header {
		if i >= len(values) {
			break
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		row[key] = values[i]
	}
	return row, nil
}
