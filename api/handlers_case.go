package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"arbflow/casefile"
	"arbflow/fault"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.Precondition("api: malformed " + name)
	}
	return id, nil
}

func (h *Handler) handleFileCase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EvidenceLink  string  `json:"evidence_link"`
		Category      int16   `json:"category"`
		RequiredLangs []int16 `json:"required_langs"`
		Respondant    *string `json:"respondant"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	caseID, err := h.cases.FileCase(r.Context(), callerAccount(r), req.EvidenceLink, req.Category, req.RequiredLangs, req.Respondant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"case_id": caseID})
}

func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	cf, err := h.cases.Get(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cf)
}

func (h *Handler) handleListClaims(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claims, err := h.cases.Claims(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) handleAddClaim(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		EvidenceLink string `json:"evidence_link"`
		Category     int16  `json:"category"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	claimID, err := h.cases.AddClaim(r.Context(), callerAccount(r), caseID, req.EvidenceLink, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"claim_id": claimID})
}

func (h *Handler) handleUpdateClaim(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claimID, err := pathID(r, "claimID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		EvidenceLink string `json:"evidence_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.UpdateClaim(r.Context(), callerAccount(r), caseID, claimID, req.EvidenceLink); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claimID, err := pathID(r, "claimID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cases.RemoveClaim(r.Context(), callerAccount(r), caseID, claimID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleShredCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cases.ShredCase(r.Context(), callerAccount(r), caseID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReadyCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cases.ReadyCase(r.Context(), callerAccount(r), caseID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleRespondOffer(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	offerID, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.RespondOffer(r.Context(), callerAccount(r), caseID, offerID, req.Accept); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleCancelCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cases.CancelCase(r.Context(), callerAccount(r), caseID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claimID, err := pathID(r, "claimID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ResponseLink string `json:"response_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.Respond(r.Context(), callerAccount(r), caseID, claimID, req.ResponseLink); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleStartCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		RespondantDays int `json:"respondant_days"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.StartCase(r.Context(), callerAccount(r), caseID, req.RespondantDays); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleReviewClaim(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claimID, err := pathID(r, "claimID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ClaimInfoRequired    string `json:"claim_info_required"`
		ClaimantDays         int    `json:"claimant_days"`
		ResponseInfoRequired string `json:"response_info_required"`
		RespondantDays       int    `json:"respondant_days"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err = h.cases.ReviewClaim(r.Context(), callerAccount(r), caseID, claimID, casefile.ReviewRequest{
		ClaimInfoRequired:    req.ClaimInfoRequired,
		ClaimantDays:         req.ClaimantDays,
		ResponseInfoRequired: req.ResponseInfoRequired,
		RespondantDays:       req.RespondantDays,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleSettleClaim(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	claimID, err := pathID(r, "claimID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Accept       bool   `json:"accept"`
		DecisionLink string `json:"decision_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.SettleClaim(r.Context(), callerAccount(r), caseID, claimID, req.Accept, req.DecisionLink); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleSetRuling(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		RulingLink string `json:"ruling_link"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.SetRuling(r.Context(), callerAccount(r), caseID, req.RulingLink); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleRecuse(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Rationale string `json:"rationale"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.Recuse(r.Context(), callerAccount(r), caseID, req.Rationale); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleValidateCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Proceed bool `json:"proceed"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.ValidateCase(r.Context(), callerAccount(r), caseID, req.Proceed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleCloseCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cases.CloseCase(r.Context(), callerAccount(r), caseID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleForceRecusal(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Rationale string `json:"rationale"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.cases.ForceRecusal(r.Context(), callerAccount(r), caseID, req.Rationale); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
