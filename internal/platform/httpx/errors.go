// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Sentinel errors raised by the HTTP layer itself.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// StatusFor maps the warehouse error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingActor), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, http.StatusText(status), detail)
}
