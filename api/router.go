package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"arbflow/arbitrator"
	"arbflow/auth"
	"arbflow/casefile"
	"arbflow/election"
	"arbflow/escrow"
	"arbflow/ledger"
	"arbflow/offerbook"
)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	auth      *auth.Service
	ledger    *ledger.Service
	escrow    *escrow.Service
	cases     *casefile.Service
	offers    *offerbook.Service
	arbs      *arbitrator.Service
	elections *election.Service
}

func NewHandler(authSvc *auth.Service, ledgerSvc *ledger.Service, escrowSvc *escrow.Service, caseSvc *casefile.Service, offerSvc *offerbook.Service, arbSvc *arbitrator.Service, electionSvc *election.Service) *Handler {
	return &Handler{
		auth:      authSvc,
		ledger:    ledgerSvc,
		escrow:    escrowSvc,
		cases:     caseSvc,
		offers:    offerSvc,
		arbs:      arbSvc,
		elections: electionSvc,
	}
}

// RouterConfig carries the cross-cutting knobs the router needs.
type RouterConfig struct {
	WebhookToken    string
	OfferRatePerMin int
	Limiter         *RateLimiter
}

// NewRouter wires every route. Webhooks sit behind the shared token; the
// rest of the mutating surface requires a bearer token.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/v1/auth/register", h.handleRegister)
	r.Post("/v1/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(webhookMiddleware(cfg.WebhookToken))
		r.With(cfg.Limiter.limit("deposits", 120)).
			Post("/v1/webhooks/deposits", h.handleDepositWebhook)
		r.Post("/v1/webhooks/ballots/results", h.handleBallotResults)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(h.auth))

		r.Get("/v1/config", h.handleGetConfig)
		r.Post("/v1/config/init", h.handleInitConfig)
		r.Put("/v1/config/admin", h.handleSetAdmin)
		r.Put("/v1/config/version", h.handleSetVersion)
		r.Put("/v1/config/params", h.handleSetParams)

		r.Get("/v1/escrow/balance", h.handleBalance)
		r.Post("/v1/escrow/withdraw", h.handleWithdraw)

		r.Route("/v1/cases", func(r chi.Router) {
			r.Post("/", h.handleFileCase)
			r.Route("/{caseID}", func(r chi.Router) {
				r.Get("/", h.handleGetCase)
				r.Delete("/", h.handleShredCase)
				r.Post("/ready", h.handleReadyCase)
				r.Post("/cancel", h.handleCancelCase)
				r.Post("/start", h.handleStartCase)
				r.Post("/ruling", h.handleSetRuling)
				r.Post("/recuse", h.handleRecuse)
				r.Post("/validate", h.handleValidateCase)
				r.Post("/close", h.handleCloseCase)
				r.Post("/force-recusal", h.handleForceRecusal)

				r.Get("/claims", h.handleListClaims)
				r.Post("/claims", h.handleAddClaim)
				r.Route("/claims/{claimID}", func(r chi.Router) {
					r.Put("/", h.handleUpdateClaim)
					r.Delete("/", h.handleRemoveClaim)
					r.Post("/respond", h.handleRespond)
					r.Post("/review", h.handleReviewClaim)
					r.Post("/settle", h.handleSettleClaim)
				})

				r.Get("/offers", h.handleListOffers)
				r.With(cfg.Limiter.limit("offers", cfg.OfferRatePerMin)).
					Post("/offers", h.handleMakeOffer)
				r.Post("/offers/{offerID}/respond", h.handleRespondOffer)
			})
		})

		r.Delete("/v1/offers/{offerID}", h.handleDismissOffer)

		r.Route("/v1/arbitrators", func(r chi.Router) {
			r.Get("/", h.handleRoster)
			r.Put("/status", h.handleSetArbStatus)
			r.Put("/languages", h.handleSetArbLanguages)
			r.Get("/{account}", h.handleGetArbitrator)
			r.Get("/{account}/cases", h.handleArbitratorCases)
			r.Delete("/{account}", h.handleDismissArbitrator)
		})

		r.Route("/v1/elections", func(r chi.Router) {
			r.Post("/", h.handleStartElection)
			r.Post("/current/candidates", h.handleAddCandidate)
			r.Delete("/current/candidates", h.handleRemoveCandidate)
			r.Post("/current/voting", h.handleBeginVoting)
			r.Post("/current/end", h.handleEndElection)
		})

		r.Post("/v1/nominees", h.handleRegisterNominee)
		r.Delete("/v1/nominees", h.handleUnregisterNominee)
	})

	return r
}
