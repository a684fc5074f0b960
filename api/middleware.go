package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"arbflow/auth"
)

type contextKey string

const (
	ctxAccount contextKey = "account"
	ctxRole    contextKey = "role"
)

// callerAccount returns the authenticated on-ledger account of the request.
func callerAccount(r *http.Request) string {
	account, _ := r.Context().Value(ctxAccount).(string)
	return account
}

// authMiddleware verifies the bearer token and stashes the caller identity.
func authMiddleware(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}

			account, role, err := svc.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), ctxAccount, account)
			ctx = context.WithValue(ctx, ctxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// webhookMiddleware gates the collaborator callbacks behind a shared token.
// A request with the wrong token is answered 204 and dropped, so probes
// cannot tell a bad token from an ignored notification.
func webhookMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
