// Package store persists run bookkeeping and, optionally, the golden table
// itself in SQLite or PostgreSQL.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// goldenTable is the table the store sink writes rows into.
const goldenTable = "golden_rows"

// goldenColumns prefixes the shared row columns with the owning run.
var goldenColumns = append([]string{"run_id"}, model.GoldenColumns...)

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, category model.ErrorCategory, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Golden rows
	ReplaceGoldenRows(ctx context.Context, runID string, rows []model.GoldenTableRow) error
	CountGoldenRows(ctx context.Context, runID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func goldenValues(runID string, r model.GoldenTableRow) []any {
	return append([]any{runID}, r.Values()...)
}
