// Package parser turns input files into canonical RawRecords.
package parser

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// Extension tables, matched case-insensitively. Longer extensions are listed
// first so ".genbank" wins over a hypothetical shorter overlap.
var extensions = []struct {
	ext    string
	format model.SourceFormat
}{
	{".genbank", model.FormatGenBank},
	{".gbff", model.FormatGenBank},
	{".gbk", model.FormatGenBank},
	{".gb", model.FormatGenBank},
	{".json", model.FormatBulkJSON},
	{".fasta", model.FormatFASTA},
	{".fas", model.FormatFASTA},
	{".fna", model.FormatFASTA},
	{".fa", model.FormatFASTA},
	{".seq", model.FormatFASTA},
}

func detectExt(name string) (model.SourceFormat, string, bool) {
	for _, e := range extensions {
		if hasSuffixFold(name, e.ext) {
			return e.format, name[len(name)-len(e.ext):], true
		}
	}
	return "", "", false
}

// Detect returns the source format implied by path's extension.
func Detect(path string) (model.SourceFormat, bool) {
	f, _, ok := detectExt(filepath.Base(path))
	return f, ok
}

// plainSequence reports whether path is a sequence-only file, which may
// omit the FASTA header line.
func plainSequence(path string) bool {
	return hasSuffixFold(filepath.Base(path), ".seq")
}

// Supported reports whether path has a recognized input extension.
func Supported(path string) bool {
	_, ok := Detect(path)
	return ok
}

// ParseFile reads and parses one input file. The sample id is derived from
// the path.
func ParseFile(path string) (*model.RawRecord, error) {
	return ParseFileAs(SampleID(path), path)
}

// ParseFileAs parses path under an explicit sample id.
func ParseFileAs(sampleID, path string) (*model.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMalformedInputError(sampleID, path, "read file", err)
	}
	return Parse(sampleID, path, bytes.NewReader(data))
}

// Parse parses a single record from r. path selects the parser by extension
// and is recorded as the record's source.
func Parse(sampleID, path string, r io.Reader) (*model.RawRecord, error) {
	format, ok := Detect(path)
	if !ok {
		return nil, NewMalformedInputError(sampleID, path, "unrecognized extension "+filepath.Ext(path), ErrUnsupportedFormat)
	}

	var (
		rec *model.RawRecord
		err error
	)
	switch format {
	case model.FormatGenBank:
		rec, err = parseGenBank(r)
	case model.FormatBulkJSON:
		rec, err = parseBulkJSON(r)
	case model.FormatFASTA:
		rec, err = parseFASTA(r, plainSequence(path))
	}
	if err != nil {
		var me *MalformedInputError
		if errors.As(err, &me) {
			me.SampleID, me.Path = sampleID, path
			return nil, me
		}
		return nil, NewMalformedInputError(sampleID, path, string(format), err)
	}

	rec.SampleID = sampleID
	if rec.OriginalID == "" && format == model.FormatFASTA {
		rec.OriginalID, rec.OriginalName = sampleID, sampleID
	}
	rec.SourcePath = path
	rec.SourceFormat = format
	rec.Sequence = strings.ToUpper(rec.Sequence)
	if rec.Sequence == "" {
		return nil, NewMalformedInputError(sampleID, path, "empty sequence", nil)
	}
	if rec.RawAnnotations == nil {
		rec.RawAnnotations = map[string]any{}
	}
	return rec, nil
}

// ListInputs returns every supported input file under dir, recursively,
// sorted by path so runs are reproducible.
func ListInputs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "parser: list inputs in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func malformed(reason string) error {
	return &MalformedInputError{Reason: reason}
}
