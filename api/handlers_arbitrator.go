package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"arbflow/arbitrator"
)

func (h *Handler) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := h.arbs.Roster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (h *Handler) handleGetArbitrator(w http.ResponseWriter, r *http.Request) {
	arb, err := h.arbs.Get(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, arb)
}

func (h *Handler) handleArbitratorCases(w http.ResponseWriter, r *http.Request) {
	lists, err := h.arbs.CaseLists(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{
		"open":    lists.Open,
		"closed":  lists.Closed,
		"recused": lists.Recused,
	})
}

func (h *Handler) handleSetArbStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.arbs.SetStatus(r.Context(), callerAccount(r), arbitrator.Status(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleSetArbLanguages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Languages []int16 `json:"languages"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.arbs.SetLanguages(r.Context(), callerAccount(r), req.Languages); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleDismissArbitrator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rationale       string `json:"rationale"`
		RemoveFromCases bool   `json:"remove_from_cases"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.cases.DismissArbitrator(r.Context(), callerAccount(r), chi.URLParam(r, "account"), req.Rationale, req.RemoveFromCases)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
