package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/raffis/matrun/internal/errdefs"
)

var errFailFast = errors.New("another job did not pass and failFast is enabled")

// NewErrAborted marks work interrupted by the cancellation of ctx.
func NewErrAborted(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrAborted, cause)
	}

	return errdefs.ErrAborted
}
