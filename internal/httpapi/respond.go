package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tessera.dev/internal/identity"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// respondFromError maps identity error kinds onto transport status codes.
// The core never formats wire responses; this is the only place the
// mapping lives.
func respondFromError(w http.ResponseWriter, err error) {
	var internal *identity.InternalError
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, identity.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, identity.ErrConflict):
		respondError(w, http.StatusConflict, "conflict")
	case errors.Is(err, identity.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &internal):
		respondError(w, http.StatusInternalServerError, internal.Error())
	default:
		respondFromError(w, identity.Internal("httpapi", err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
