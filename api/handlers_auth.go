package api

import (
	"net/http"

	"arbflow/auth"
)

type accountResponse struct {
	Account string `json:"account"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	acc, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		Account: acc.Account,
		Email:   acc.Email,
		Role:    string(acc.Role),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"account": accountResponse{
			Account: result.Account.Account,
			Email:   result.Account.Email,
			Role:    string(result.Account.Role),
		},
	})
}
