package httpapi

import (
	"errors"
	"net/http"

	"engagement/pkg/domain"
)

// Error statuses carried in the envelope's status field.
const (
	StatusInvalidArgument  = "invalid-argument"
	StatusNotFound         = "not-found"
	StatusPermissionDenied = "permission-denied"
	StatusUnauthenticated  = "unauthenticated"
	StatusInternal         = "internal"
)

// ErrorBody is the JSON envelope for every non-2xx response.
type ErrorBody struct {
	Error   string              `json:"error"`
	Code    int                 `json:"code"`
	Status  string              `json:"status"`
	Details []domain.FieldError `json:"details,omitempty"`
}

// classify maps a service error to an HTTP status and envelope status.
func classify(err error) (int, string, []domain.FieldError) {
	var validation *domain.ValidationError
	var notFound domain.NotFoundError
	var permission *domain.PermissionError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, StatusInvalidArgument, validation.Problems
	case errors.As(err, &notFound):
		return http.StatusNotFound, StatusNotFound, nil
	case errors.As(err, &permission):
		return http.StatusForbidden, StatusPermissionDenied, nil
	default:
		return http.StatusInternalServerError, StatusInternal, nil
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, status, details := classify(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeError(w, code, status, msg, details)
}

func writeError(w http.ResponseWriter, code int, status, message string, details []domain.FieldError) {
	writeJSON(w, code, ErrorBody{Error: message, Code: code, Status: status, Details: details})
}
