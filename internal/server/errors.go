package server

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// errorEnvelope is the JSON body of every error response.
type errorEnvelope struct {
	Error *domain.APIError `json:"error"`
}

// WriteError renders err as {"error": {...}}. Errors that are not
// *domain.APIError become an opaque server error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		AddError(r.Context(), err)
		apiErr = domain.ErrServer("internal error")
	} else {
		AddLogField(r.Context(), "error_type", string(apiErr.Type))
	}
	WriteJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: apiErr})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
