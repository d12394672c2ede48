package cfdi

import (
	"errors"
	"fmt"
)

// Sentinel errors so callers can branch on the failure class.
var (
	// ErrMissingRate means no currency conversion rate could be resolved
	// for the requested date. Surfaced to the caller, never retried here.
	ErrMissingRate = errors.New("no currency rate available for the requested date")

	// ErrInvalidLineData means a computable line lacks required tax or
	// pricing attributes. The whole computation aborts: the value set
	// must be complete or absent.
	ErrInvalidLineData = errors.New("invoice line has invalid tax or pricing data")

	// ErrConfiguration means customer or company data is insufficient
	// for the requested computation.
	ErrConfiguration = errors.New("insufficient fiscal configuration")
)

// BuildError wraps a sentinel with human-readable detail.
type BuildError struct {
	Err     error
	Details string
}

func (e *BuildError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildErrf(sentinel error, format string, args ...interface{}) error {
	return &BuildError{Err: sentinel, Details: fmt.Sprintf(format, args...)}
}
