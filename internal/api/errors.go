package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/experiment"
	"github.com/nerrad567/cdl-core/internal/result"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// authRequiredMessage is the single body for every authentication failure.
const authRequiredMessage = "authentication required"

// writeJSON writes a JSON response with the given status code and payload.
// A nil payload is encoded as the JSON literal null.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, authRequiredMessage)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps a domain error to its HTTP response. Anything
// unrecognised is logged with its detail and answered with a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w, "you do not have permission to perform this action")
	case errors.Is(err, experiment.ErrNotFound):
		writeNotFound(w, "experiment not found")
	case errors.Is(err, result.ErrNotFound):
		writeNotFound(w, "result not found")
	case errors.Is(err, experiment.ErrValidation):
		writeValidationError(w, detail(err, experiment.ErrValidation))
	case errors.Is(err, result.ErrValidation):
		writeValidationError(w, detail(err, result.ErrValidation))
	case errors.Is(err, result.ErrReferenceIntegrity):
		writeValidationError(w, "experiment: "+detail(err, result.ErrReferenceIntegrity))
	case errors.Is(err, auth.ErrInvalidProfile):
		writeValidationError(w, detail(err, auth.ErrInvalidProfile))
	case errors.Is(err, auth.ErrEmailExists):
		writeConflict(w, "email already registered")
	default:
		s.logger.Error(op+" failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return sentinel.Error()
}

// decodeJSON reads the request body into v. It writes the error response
// itself and returns false on failure. Syntax errors are bad_request; a
// value of the wrong type is a validation_error naming the field.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		writeValidationError(w, fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type))
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body is required")
	default:
		writeBadRequest(w, "invalid JSON body")
	}
	return false
}
