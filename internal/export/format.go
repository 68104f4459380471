package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/space-cli/internal/model"
)

// Format is a golden table encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSONL   Format = "jsonl"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatParquet, FormatCSV, FormatXLSX, FormatJSONL:
		return f, nil
	case "":
		return FormatParquet, nil
	default:
		return "", eris.Errorf("export: unsupported table format %q", s)
	}
}

// Extension returns the file extension, dot included.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type used for object storage uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/vnd.apache.parquet"
	}
}

// Encode writes rows to w in format f.
func (f Format) Encode(w io.Writer, rows []model.GoldenTableRow) error {
	switch f {
	case FormatParquet:
		return encodeParquet(w, rows)
	case FormatCSV:
		return encodeCSV(w, rows)
	case FormatXLSX:
		return encodeXLSX(w, rows)
	case FormatJSONL:
		return encodeJSONL(w, rows)
	default:
		return eris.Errorf("export: unsupported table format %q", string(f))
	}
}

func encodeParquet(w io.Writer, rows []model.GoldenTableRow) error {
	pw := parquet.NewGenericWriter[model.GoldenTableRow](w)
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return eris.Wrap(err, "export: write parquet rows")
	}
	if err := pw.Close(); err != nil {
		return eris.Wrap(err, "export: close parquet writer")
	}
	return nil
}

func stringValues(r model.GoldenTableRow) []string {
	vals := r.Values()
	out := make([]string, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case string:
			out[i] = t
		case int64:
			out[i] = strconv.FormatInt(t, 10)
		}
	}
	return out
}

func encodeCSV(w io.Writer, rows []model.GoldenTableRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.GoldenColumns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(stringValues(r)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.SampleID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func encodeXLSX(w io.Writer, rows []model.GoldenTableRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("golden_table")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}
	header := sheet.AddRow()
	for _, col := range model.GoldenColumns {
		header.AddCell().SetString(col)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r.Values() {
			cell := row.AddCell()
			switch t := v.(type) {
			case int64:
				cell.SetInt64(t)
			case string:
				cell.SetString(t)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func encodeJSONL(w io.Writer, rows []model.GoldenTableRow) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "export: write jsonl row %s", r.SampleID)
		}
	}
	return nil
}
