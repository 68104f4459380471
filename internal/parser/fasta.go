package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// parseFASTA reads the first record of a FASTA stream. Only the sequence is
// meaningful; the header becomes the original id and description. With bare
// set, a stream with no header line is read as a plain sequence.
func parseFASTA(r io.Reader, bare bool) (*model.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var (
		header   string
		seenHead bool
		seq      strings.Builder
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, ">") {
			if seenHead || seq.Len() > 0 {
				break
			}
			seenHead = true
			header = strings.TrimSpace(line[1:])
			continue
		}
		if !seenHead && !bare {
			return nil, malformed("sequence data before FASTA header")
		}
		seq.WriteString(stripSequence(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "fasta: scan")
	}
	if !seenHead && !bare {
		return nil, malformed("missing FASTA header")
	}

	rec := &model.RawRecord{
		Sequence:       seq.String(),
		RawAnnotations: map[string]any{},
	}
	if !seenHead {
		return rec, nil
	}
	if id, desc, ok := strings.Cut(header, " "); ok {
		rec.OriginalID = id
		rec.Description = strings.TrimSpace(desc)
	} else {
		rec.OriginalID = header
	}
	rec.OriginalName = rec.OriginalID
	return rec, nil
}

// stripSequence keeps sequence letters and gap/stop symbols, dropping
// digits and whitespace.
func stripSequence(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for _, c := range line {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '*', c == '-':
			b.WriteRune(c)
		}
	}
	return b.String()
}
