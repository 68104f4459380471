package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/space-cli/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("upload: %w", NewTransientError(errors.New("throttled"), 429)), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("throttled"), 429), "export"), true},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"message pattern", errors.New("read: i/o timeout"), true},
		{"s3 slowdown", errors.New("api error SlowDown: please reduce your request rate"), true},
		{"regular", errors.New("invalid bucket name"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

type categoryErr struct{ cat model.ErrorCategory }

func (e *categoryErr) Error() string                      { return string(e.cat) }
func (e *categoryErr) ErrorCategory() model.ErrorCategory { return e.cat }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorCategory
	}{
		{"nil", nil, model.ErrorCategoryNone},
		{"domain join", eris.Wrap(&categoryErr{model.ErrorCategoryJoin}, "pipeline"), model.ErrorCategoryJoin},
		{"domain export", fmt.Errorf("run: %w", &categoryErr{model.ErrorCategoryExport}), model.ErrorCategoryExport},
		{"deadline", context.DeadlineExceeded, model.ErrorCategoryTransient},
		{"canceled", eris.Wrap(context.Canceled, "pipeline"), model.ErrorCategoryTransient},
		{"transient", NewTransientError(errors.New("503"), 503), model.ErrorCategoryTransient},
		{"permanent", errors.New("disk full"), model.ErrorCategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}
