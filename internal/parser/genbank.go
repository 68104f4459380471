package parser

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

const (
	twelveSpaces     = "            "
	twentyOneSpaces  = "                     "
	featureKeyIndent = "     "
)

var locationInts = regexp.MustCompile(`\d+`)

// parseGenBank reads the first record of a GenBank flatfile. Parsing stops
// at the first "//" terminator.
func parseGenBank(r io.Reader) (*model.RawRecord, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	rec := &model.RawRecord{RawAnnotations: map[string]any{}}
	var (
		sawLocus  bool
		sawOrigin bool
		seq       strings.Builder
	)

	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case line == "":
			i++
		case strings.HasPrefix(line, "//"):
			i = len(lines)
		case strings.HasPrefix(line, "LOCUS"):
			parseLocus(line, rec)
			sawLocus = true
			i++
		case !sawLocus:
			// Release headers precede the first LOCUS line.
			i++
		case strings.HasPrefix(line, "FEATURES"):
			i, err = parseFeatures(lines, i+1, rec)
			if err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "ORIGIN"):
			sawOrigin = true
			i++
			for i < len(lines) && !strings.HasPrefix(lines[i], "//") {
				seq.WriteString(stripSequence(lines[i]))
				i++
			}
		case strings.HasPrefix(line, "REFERENCE"):
			i = skipBlock(lines, i+1)
			rec.RawAnnotations["references"] = intAnnotation(rec.RawAnnotations["references"]) + 1
		case line[0] != ' ':
			key, value := splitKeyword(line)
			value, i = readContinuation(lines, i+1, value)
			applyKeyword(rec, key, value)
			if key == "SOURCE" {
				i = parseSourceSubKeywords(lines, i, rec)
			}
		default:
			i++
		}
	}

	if !sawLocus {
		return nil, malformed("missing LOCUS line")
	}
	if !sawOrigin {
		return nil, malformed("missing ORIGIN sequence block")
	}
	rec.Sequence = seq.String()
	if rec.Sequence == "" {
		return nil, malformed("empty ORIGIN sequence block")
	}
	if rec.Organism == "" {
		rec.Organism = rec.SourceQualifiers["organism"]
	}
	if rec.OriginalID == "" {
		rec.OriginalID = rec.OriginalName
	}
	return rec, nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r "))
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "genbank: scan")
	}
	return lines, nil
}

// parseLocus reads name, molecule type, topology, division and date. The
// column layout varies between producers, so tokens are recognized by shape
// rather than position.
func parseLocus(line string, rec *model.RawRecord) {
	cols := strings.Fields(line)
	if len(cols) > 1 {
		rec.OriginalName = cols[1]
	}
	for idx, col := range cols {
		if idx < 2 {
			continue
		}
		lower := strings.ToLower(col)
		switch {
		case lower == "circular" || lower == "linear":
			rec.Topology = lower
			rec.RawAnnotations["topology"] = lower
		case strings.Contains(col, "DNA") || strings.Contains(col, "RNA"):
			rec.RawAnnotations["molecule_type"] = col
		case len(col) == 11 && strings.Count(col, "-") == 2:
			rec.RawAnnotations["date"] = col
		case len(col) == 3 && strings.ToUpper(col) == col && idx == len(cols)-2:
			rec.RawAnnotations["data_file_division"] = col
		}
	}
}

func splitKeyword(line string) (string, string) {
	if len(line) > 12 && strings.TrimSpace(line[:12]) != "" && !strings.Contains(strings.TrimSpace(line[:12]), " ") {
		return strings.TrimSpace(line[:12]), strings.TrimSpace(line[12:])
	}
	key, value, _ := strings.Cut(line, " ")
	return strings.TrimSpace(key), strings.TrimSpace(value)
}

// readContinuation appends every following 12-space continuation line to
// value, joined by single spaces.
func readContinuation(lines []string, i int, value string) (string, int) {
	parts := []string{}
	if value != "" {
		parts = append(parts, value)
	}
	for i < len(lines) && strings.HasPrefix(lines[i], twelveSpaces) {
		if txt := strings.TrimSpace(lines[i]); txt != "" {
			parts = append(parts, txt)
		}
		i++
	}
	return strings.Join(parts, " "), i
}

// skipBlock advances past an indented block (continuation and sub-keyword
// lines) following a top-level keyword.
func skipBlock(lines []string, i int) int {
	for i < len(lines) && (lines[i] == "" || strings.HasPrefix(lines[i], " ")) {
		i++
	}
	return i
}

func parseSourceSubKeywords(lines []string, i int, rec *model.RawRecord) int {
	for i < len(lines) && strings.HasPrefix(lines[i], "  ") && !strings.HasPrefix(lines[i], twelveSpaces) {
		key, value := splitKeyword(strings.TrimLeft(lines[i], " "))
		i++
		if key != "ORGANISM" {
			_, i = readContinuation(lines, i, value)
			continue
		}
		rec.Organism = value
		rec.RawAnnotations["organism"] = value
		var lineage string
		lineage, i = readContinuation(lines, i, "")
		if lineage != "" {
			rec.RawAnnotations["taxonomy"] = splitList(strings.TrimSuffix(lineage, "."), ";")
		}
	}
	return i
}

func applyKeyword(rec *model.RawRecord, key, value string) {
	switch key {
	case "DEFINITION":
		rec.Description = strings.TrimSuffix(value, ".")
	case "ACCESSION":
		accs := strings.Fields(value)
		rec.RawAnnotations["accessions"] = accs
		if rec.OriginalID == "" && len(accs) > 0 {
			rec.OriginalID = accs[0]
		}
	case "VERSION":
		fields := strings.Fields(value)
		if len(fields) > 0 {
			rec.OriginalID = fields[0]
			if _, v, ok := strings.Cut(fields[0], "."); ok {
				if n, err := strconv.Atoi(v); err == nil {
					rec.RawAnnotations["sequence_version"] = n
				}
			}
		}
	case "KEYWORDS":
		v := strings.TrimSuffix(value, ".")
		if v != "" {
			rec.Keywords = splitList(v, ";")
		}
		rec.RawAnnotations["keywords"] = append([]string{}, rec.Keywords...)
	case "SOURCE":
		rec.RawAnnotations["source"] = value
	case "COMMENT":
		rec.Comment = value
		rec.RawAnnotations["comment"] = value
	case "":
	default:
		rec.RawAnnotations[strings.ToLower(key)] = value
	}
}

// parseFeatures consumes the feature table starting at lines[i] and returns
// the index of the first line after it.
func parseFeatures(lines []string, i int, rec *model.RawRecord) (int, error) {
	var cur *featureBuilder
	flush := func() error {
		if cur == nil {
			return nil
		}
		f, err := cur.build()
		if err != nil {
			return err
		}
		if f.Type == "source" {
			if rec.SourceQualifiers == nil {
				rec.SourceQualifiers = f.Qualifiers
			}
		} else {
			rec.Features = append(rec.Features, f)
		}
		cur = nil
		return nil
	}

	for i < len(lines) {
		line := lines[i]
		if line == "" {
			i++
			continue
		}
		if !strings.HasPrefix(line, " ") {
			break
		}
		if strings.HasPrefix(line, twentyOneSpaces) {
			text := strings.TrimSpace(line)
			if cur == nil {
				return i, malformed("feature qualifier outside of a feature")
			}
			if strings.HasPrefix(text, "/") && !cur.inQuote() {
				cur.startQualifier(text[1:])
			} else {
				cur.continueLine(text)
			}
			i++
			continue
		}
		if strings.HasPrefix(line, featureKeyIndent) {
			if err := flush(); err != nil {
				return i, err
			}
			fields := strings.Fields(line)
			cur = &featureBuilder{key: fields[0], location: strings.Join(fields[1:], "")}
			i++
			continue
		}
		i++
	}
	if err := flush(); err != nil {
		return i, err
	}
	return i, nil
}

type qualifier struct {
	key   string
	value strings.Builder
	bare  bool
}

type featureBuilder struct {
	key        string
	location   string
	qualifiers []*qualifier
}

func (b *featureBuilder) inQuote() bool {
	if len(b.qualifiers) == 0 {
		return false
	}
	q := b.qualifiers[len(b.qualifiers)-1]
	v := q.value.String()
	return strings.HasPrefix(v, `"`) && strings.Count(v, `"`)%2 == 1
}

func (b *featureBuilder) startQualifier(text string) {
	key, value, ok := strings.Cut(text, "=")
	q := &qualifier{key: key, bare: !ok}
	q.value.WriteString(value)
	b.qualifiers = append(b.qualifiers, q)
}

func (b *featureBuilder) continueLine(text string) {
	if len(b.qualifiers) == 0 {
		// Location strings may wrap before the first qualifier.
		b.location += text
		return
	}
	q := b.qualifiers[len(b.qualifiers)-1]
	if q.key != "translation" && q.value.Len() > 0 {
		q.value.WriteByte(' ')
	}
	q.value.WriteString(text)
}

func (b *featureBuilder) build() (model.Feature, error) {
	start, end, strand, err := parseLocation(b.location)
	if err != nil {
		return model.Feature{}, err
	}
	f := model.Feature{Type: b.key, Start: start, End: end, Strand: strand}
	if len(b.qualifiers) > 0 {
		f.Qualifiers = make(map[string]string, len(b.qualifiers))
	}
	for _, q := range b.qualifiers {
		if _, seen := f.Qualifiers[q.key]; seen {
			continue
		}
		if q.bare {
			f.Qualifiers[q.key] = "true"
			continue
		}
		v := q.value.String()
		if strings.HasPrefix(v, `"`) {
			v = strings.TrimSuffix(strings.TrimPrefix(v, `"`), `"`)
			v = strings.ReplaceAll(v, `""`, `"`)
		}
		f.Qualifiers[q.key] = v
	}
	return f, nil
}

// parseLocation reduces a GenBank location to its outer span. Start is
// converted to 0-based; end stays 1-based inclusive, which is the 0-based
// exclusive bound.
func parseLocation(loc string) (int, int, int, error) {
	nums := locationInts.FindAllString(loc, -1)
	if len(nums) == 0 {
		return 0, 0, 0, malformed("unparseable feature location " + strconv.Quote(loc))
	}
	lo, hi := -1, -1
	for _, s := range nums {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, 0, malformed("unparseable feature location " + strconv.Quote(loc))
		}
		if lo == -1 || n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	strand := 1
	if strings.Contains(loc, "complement(") {
		strand = -1
	}
	return lo - 1, hi, strand, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intAnnotation(v any) int {
	n, _ := v.(int)
	return n
}
