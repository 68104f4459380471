package parser

import (
	"errors"
	"fmt"

	"github.com/sells-group/space-cli/internal/model"
)

// MalformedInputError reports an input unit that could not be turned into a
// RawRecord. It is fatal to that sample only.
type MalformedInputError struct {
	SampleID string
	Path     string
	Reason   string
	Err      error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("parser: malformed input %q", e.Path)
	if e.SampleID != "" {
		msg += fmt.Sprintf(" (sample %s)", e.SampleID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// ErrorCategory reports how a run records this failure.
func (e *MalformedInputError) ErrorCategory() model.ErrorCategory {
	return model.ErrorCategoryMalformed
}

// NewMalformedInputError builds a MalformedInputError.
func NewMalformedInputError(sampleID, path, reason string, err error) *MalformedInputError {
	return &MalformedInputError{SampleID: sampleID, Path: path, Reason: reason, Err: err}
}

// IsMalformed returns true if err (or any error in its chain) is a
// MalformedInputError.
func IsMalformed(err error) bool {
	var me *MalformedInputError
	return errors.As(err, &me)
}

// ErrSampleIDCollision marks a MalformedInputError raised because two source
// files sanitized to the same sample id.
var ErrSampleIDCollision = errors.New("sample id collision")

// ErrUnsupportedFormat marks a MalformedInputError for an unrecognized
// file extension.
var ErrUnsupportedFormat = errors.New("unsupported input format")
