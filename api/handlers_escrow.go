package api

import (
	"errors"
	"net/http"

	"arbflow/escrow"
)

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.escrow.BalanceOf(r.Context(), callerAccount(r))
	if err != nil {
		if errors.Is(err, escrow.ErrNoBalance) {
			writeJSON(w, http.StatusOK, map[string]int64{"amount": 0})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": balance.Amount})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := h.escrow.Withdraw(r.Context(), callerAccount(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

// handleDepositWebhook receives transfer notifications from the ledger
// gateway. Transfers the service ignores (self-sends, own outbound moves)
// still answer 200 so the gateway stops redelivering them.
func (h *Handler) handleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransferID string `json:"transfer_id"`
		From       string `json:"from"`
		To         string `json:"to"`
		Amount     int64  `json:"amount"`
		Token      string `json:"token"`
		Memo       string `json:"memo"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.escrow.HandleDeposit(r.Context(), escrow.Deposit{
		TransferID: req.TransferID,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Token:      req.Token,
		Memo:       req.Memo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
