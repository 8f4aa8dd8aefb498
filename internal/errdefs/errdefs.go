// Package errdefs holds the error taxonomy shared by all orchestrator components.
// Errors are wrapped with %w and classified with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed pipeline definition or an unresolvable matrix.
	// It aborts the run before any job starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrExpression marks a malformed or non boolean step guard.
	ErrExpression = errors.New("expression error")

	// ErrStepFailed marks a step which terminated with a nonzero exit code.
	ErrStepFailed = errors.New("step failed")

	// ErrTimeout marks a step which was terminated after its timeout elapsed.
	ErrTimeout = errors.New("step timed out")

	// ErrSpawn marks a step whose process could not be started.
	ErrSpawn = errors.New("process could not be spawned")

	// ErrAborted marks work which was interrupted by a pipeline cancellation.
	ErrAborted = errors.New("aborted")

	// ErrTransport marks a failed notification dispatch.
	ErrTransport = errors.New("notification transport error")
)

func NewConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func NewExpressionError(expr string, err error) error {
	return fmt.Errorf("%w: `%s`: %w", ErrExpression, expr, err)
}

// IsFailure reports whether err is a clean negative outcome (nonzero exit or timeout)
// as opposed to a fault of the orchestrator or its configuration.
func IsFailure(err error) bool {
	return errors.Is(err, ErrStepFailed) || errors.Is(err, ErrTimeout)
}
