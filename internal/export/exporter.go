// Package export deduplicates classified records and persists the golden
// table with its run summary.
package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/space-cli/internal/model"
)

// Exporter collapses and persists one run's records through a Sink.
type Exporter struct {
	sink Sink
}

// New creates an Exporter writing through sink.
func New(sink Sink) *Exporter {
	return &Exporter{sink: sink}
}

// Export dedups records, fills summary, and writes the table. Any write
// failure is returned as an ExportIntegrityError. A nil summary starts from
// an empty one.
func (e *Exporter) Export(ctx context.Context, records []model.ClassifiedRecord, summary *model.Summary) (*model.Summary, error) {
	if summary == nil {
		summary = model.NewSummary()
	}
	rows, err := Collect(records, summary)
	if err != nil {
		return summary, NewExportIntegrityError(e.sink.Name(), err)
	}

	location, err := e.sink.Write(ctx, rows, summary)
	if err != nil {
		if IsExportIntegrity(err) {
			return summary, err
		}
		if location == "" {
			location = e.sink.Name()
		}
		return summary, NewExportIntegrityError(location, err)
	}
	summary.TableLocation = location

	zap.L().Info("export: table written",
		zap.String("sink", e.sink.Name()),
		zap.String("location", location),
		zap.Int("written", summary.Written),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("rejected", summary.Rejected),
	)
	return summary, nil
}
