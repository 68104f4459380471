package export

import (
	"errors"
	"fmt"

	"github.com/sells-group/space-cli/internal/model"
)

// ExportIntegrityError means the table could not be persisted completely.
// No partial table is left at the destination; the run must fail.
type ExportIntegrityError struct {
	Location string
	Err      error
}

func (e *ExportIntegrityError) Error() string {
	return fmt.Sprintf("export: integrity failure writing %s: %v", e.Location, e.Err)
}

func (e *ExportIntegrityError) Unwrap() error {
	return e.Err
}

// ErrorCategory reports how a run records this failure.
func (e *ExportIntegrityError) ErrorCategory() model.ErrorCategory {
	return model.ErrorCategoryExport
}

// NewExportIntegrityError wraps err for the table destination location.
func NewExportIntegrityError(location string, err error) *ExportIntegrityError {
	return &ExportIntegrityError{Location: location, Err: err}
}

// IsExportIntegrity reports whether err (or any error in its chain) is an
// ExportIntegrityError.
func IsExportIntegrity(err error) bool {
	var ee *ExportIntegrityError
	return errors.As(err, &ee)
}
