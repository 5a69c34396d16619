package apperr

import (
	"errors"
	"net/http"
)

// Sentinel errors for the failure classes the API distinguishes.
// Wrap with fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// HTTPStatus maps an error to the status code the REST layer returns.
// Anything unclassified is treated as a transient/unexpected server error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
