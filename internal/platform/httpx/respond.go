// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// RespondError maps core errors to problem responses. Conflict-class errors
// (invalid state, insufficient stock) surface as 409 so callers can retry
// after refreshing their view of the record.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	case shared.IsInvalidState(err):
		Problem(w, http.StatusConflict, "Invalid State", shared.UserSafeMessage(err))
	case shared.IsInsufficientStock(err):
		Problem(w, http.StatusConflict, "Insufficient Stock", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrConsistency):
		Problem(w, http.StatusInternalServerError, "Consistency Error", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
