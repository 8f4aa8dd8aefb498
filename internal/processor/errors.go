package processor

import "errors"

// AbortOnError reports whether err stops the remaining steps of a phase.
// Skipped steps and failures tolerated by continueOnError do not.
func AbortOnError(err error) bool {
	switch {
	case errors.Is(err, ErrAllowFailure):
		return false
	case errors.Is(err, ErrConditionFalse):
		return false
	case err != nil:
		return true
	default:
		return false
	}
}
