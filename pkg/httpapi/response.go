package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arakoodev/cliscale/pkg/apierror"
)

// errorBody is the minimal JSON shape an HTTP caller sees on failure —
// a machine-readable code and a message, never a stack trace or the
// wrapped cause's internal text.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err through apierror and writes the matching
// HTTP status and minimal body. Errors that aren't an *apierror.Error
// are treated as an unclassified internal failure.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		writeJSON(w, apierror.HTTPStatus(apiErr.Code), errorBody{Code: string(apiErr.Code), Message: apiErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
