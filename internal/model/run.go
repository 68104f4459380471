package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusExporting RunStatus = "exporting"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// ErrorCategory groups failures recorded on runs and rejected samples.
type ErrorCategory string

const (
	ErrorCategoryNone      ErrorCategory = ""
	ErrorCategoryMalformed ErrorCategory = "malformed"
	ErrorCategoryJoin      ErrorCategory = "join"
	ErrorCategoryExport    ErrorCategory = "export"
	ErrorCategoryRejected  ErrorCategory = "rejected"
	ErrorCategoryTransient ErrorCategory = "transient"
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// RunInput describes what a run was asked to process.
type RunInput struct {
	InputDir  string          `json:"input_dir"`
	TrackDir  string          `json:"track_dir,omitempty"`
	OutputDir string          `json:"output_dir,omitempty"`
	Format    string          `json:"format"`
	Sink      string          `json:"sink"`
	Skip      map[string]bool `json:"skip,omitempty"`
}

// Run is one invocation of the full pipeline.
type Run struct {
	ID            string        `json:"id"`
	Input         RunInput      `json:"input"`
	Status        RunStatus     `json:"status"`
	Result        *RunResult    `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RunResult is the final outcome of a completed run.
type RunResult struct {
	Summary  *Summary      `json:"summary"`
	Phases   []PhaseResult `json:"phases"`
	Location string        `json:"location,omitempty"`
}

// RunPhase is the persisted record of one phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
