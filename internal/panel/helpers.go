package panel

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rendis/proact/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto an HTTP status. Codes other
// than store and execution failures are the caller's fault.
func writeServiceError(w http.ResponseWriter, err error) {
	pe, ok := schema.AsProactError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(pe.Code), map[string]any{
		"error":   pe.Message,
		"code":    pe.Code,
		"details": pe.Details,
	})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound, schema.ErrCodeComponentNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeStore, schema.ErrCodeExecution:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// queryInt extracts an integer query param. A malformed value is reported
// rather than silently replaced by def.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "%s must be a non-negative integer, got %q", key, v).WithField(key)
	}
	return n, nil
}
