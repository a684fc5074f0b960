// Package api exposes the service over HTTP. Handlers decode and authorize,
// domain services decide; rejection kinds map onto status codes so callers
// can tell a denied request from a broken collaborator.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"arbflow/auth"
	"arbflow/fault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"encode response\" err=%v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError translates a domain rejection into a status code. Anything
// unclassified is an infrastructure failure and stays opaque to the caller.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	case errors.Is(err, auth.ErrDuplicateAccount), errors.Is(err, auth.ErrWeakPassword):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
		return
	case errors.Is(err, auth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}

	kind := fault.KindOf(err)
	switch kind {
	case fault.KindAuthorization:
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Kind: kind.String()})
	case fault.KindPrecondition:
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: kind.String()})
	case fault.KindInvariant:
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: kind.String()})
	case fault.KindDependency:
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Kind: kind.String()})
	default:
		log.Printf("level=error component=api msg=\"internal error\" err=%v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.Precondition("api: malformed request body")
	}
	return nil
}
