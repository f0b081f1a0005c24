package response

import (
	"encoding/json"
	"net/http"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/pkg/logger"
)

// ErrorResponse is the JSON error envelope for every non-2xx body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code}); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// Extra transport-level codes on top of the domain set.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"
)

// FromDomain maps a service error to the wire. Unknown errors become an
// opaque 500 so internals never leak.
func FromDomain(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	switch code {
	case domain.CodeNotFound:
		WriteError(w, http.StatusNotFound, err.Error(), code)
	case domain.CodeValidationFailed:
		WriteError(w, http.StatusBadRequest, err.Error(), code)
	case domain.CodeInvalidState:
		WriteError(w, http.StatusConflict, err.Error(), code)
	case domain.CodeForbidden, domain.CodeBlacklisted:
		WriteError(w, http.StatusForbidden, err.Error(), code)
	case domain.CodeExpiredToken:
		WriteError(w, http.StatusGone, err.Error(), code)
	default:
		WriteError(w, http.StatusInternalServerError, "internal error", CodeInternalError)
	}
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
