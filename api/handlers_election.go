package api

import (
	"errors"
	"log"
	"net/http"

	"arbflow/election"
)

func (h *Handler) handleStartElection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InfoLink string `json:"info_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.elections.StartElection(r.Context(), callerAccount(r), req.InfoLink)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"election_id": id})
}

func (h *Handler) handleRegisterNominee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CredentialsLink string `json:"credentials_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.elections.RegisterNominee(r.Context(), callerAccount(r), req.CredentialsLink); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (h *Handler) handleUnregisterNominee(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.UnregisterNominee(r.Context(), callerAccount(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.AddCandidate(r.Context(), callerAccount(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (h *Handler) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.RemoveCandidate(r.Context(), callerAccount(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBeginVoting(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.BeginVoting(r.Context(), callerAccount(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleEndElection(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.EndElection(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// handleBallotResults consumes the ballot service's final-tally callback. A
// notification for a ballot this service never opened is dropped with 204,
// matching the token check: strangers learn nothing.
func (h *Handler) handleBallotResults(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BallotRef string           `json:"ballot_ref"`
		Results   map[string]int64 `json:"results"`
		Voters    int              `json:"voters"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.elections.Resolve(r.Context(), req.BallotRef, req.Results)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			log.Printf("level=warn component=api msg=\"ignoring results for unknown ballot\" ref=%s", req.BallotRef)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
