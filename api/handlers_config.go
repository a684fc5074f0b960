package api

import (
	"net/http"

	"arbflow/ledger"
)

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	conf, err := h.ledger.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (h *Handler) handleInitConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Init(r.Context(), callerAccount(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (h *Handler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin string `json:"admin"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.ledger.SetAdmin(r.Context(), callerAccount(r), req.Admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleSetVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version string `json:"version"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.ledger.SetVersion(r.Context(), callerAccount(r), req.Version); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxElectedArbs    int   `json:"max_elected_arbs"`
		ElectionVotingSec int64 `json:"election_voting_secs"`
		RunoffVotingSec   int64 `json:"runoff_voting_secs"`
		AddCandidatesSec  int64 `json:"add_candidates_secs"`
		ArbTermSec        int64 `json:"arb_term_secs"`
		MaxClaimsPerCase  int   `json:"max_claims_per_case"`
		FeeUSD            int64 `json:"fee_usd"`
		OfferWindowSec    int64 `json:"offer_window_secs"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.ledger.SetParams(r.Context(), callerAccount(r), ledger.Params{
		MaxElectedArbs:    req.MaxElectedArbs,
		ElectionVotingSec: req.ElectionVotingSec,
		RunoffVotingSec:   req.RunoffVotingSec,
		AddCandidatesSec:  req.AddCandidatesSec,
		ArbTermSec:        req.ArbTermSec,
		MaxClaimsPerCase:  req.MaxClaimsPerCase,
		FeeUSD:            req.FeeUSD,
		OfferWindowSec:    req.OfferWindowSec,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
