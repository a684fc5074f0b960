package api

import (
	"net/http"
)

func (h *Handler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := h.offers.ByCase(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (h *Handler) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		OfferID        *int64 `json:"offer_id"`
		HourlyRate     int64  `json:"hourly_rate"`
		EstimatedHours int16  `json:"estimated_hours"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.offers.MakeOffer(r.Context(), callerAccount(r), caseID, req.OfferID, req.HourlyRate, req.EstimatedHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"offer_id": id})
}

func (h *Handler) handleDismissOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.offers.DismissOffer(r.Context(), callerAccount(r), offerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
