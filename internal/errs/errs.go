// Package errs defines the error taxonomy shared by the runtime core and
// the API surface. Errors are classified by wrapping one of the sentinels
// with fmt.Errorf and %w; callers branch with errors.Is.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput marks a missing required field, schema violation,
	// or document ID mismatch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConcurrency marks a revision mismatch on an optimistic save.
	ErrConcurrency = errors.New("revision conflict")

	// ErrNotFound marks a moniker with no underlying document.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a dependency that is not (yet) usable: the
	// configuration manager before initialization, an unregistered
	// plugin id, a missing data source.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout marks work that failed to complete within its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks work aborted by cooperative cancel.
	ErrCancelled = errors.New("cancelled")

	// ErrClosed marks a send or submit to a component that has shut down.
	ErrClosed = errors.New("closed")

	// ErrInternal marks everything else.
	ErrInternal = errors.New("internal error")
)

// HTTPStatus maps a classified error onto the API's status codes.
// Unclassified errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConcurrency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
