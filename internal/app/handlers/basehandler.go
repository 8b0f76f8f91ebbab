package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skillmarket/backend/internal/app/ledger"
	"github.com/skillmarket/backend/internal/app/order"
	"github.com/skillmarket/backend/internal/app/payment"
	"github.com/skillmarket/backend/internal/app/payout"
	"github.com/skillmarket/backend/internal/app/reconcile"
	"github.com/skillmarket/backend/internal/app/storage"
)

type BaseHandler struct {
	*chi.Mux
	repo          storage.Repository
	machine       *order.Machine
	intents       *payment.IntentManager
	ledger        *ledger.Service
	orchestrator  *payout.Orchestrator
	reconciler    *reconcile.Reconciler
	webhookSecret string
	adminToken    string
}

func NewBaseHandler(
	repo storage.Repository,
	machine *order.Machine,
	intents *payment.IntentManager,
	ledgerSvc *ledger.Service,
	orchestrator *payout.Orchestrator,
	reconciler *reconcile.Reconciler,
	webhookSecret string,
	adminToken string,
) *BaseHandler {
	bh := &BaseHandler{
		Mux:           chi.NewMux(),
		repo:          repo,
		machine:       machine,
		intents:       intents,
		ledger:        ledgerSvc,
		orchestrator:  orchestrator,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
		adminToken:    adminToken,
	}

	bh.Use(middleware.RequestID)
	bh.Use(middleware.RealIP)
	bh.Use(middleware.Logger)
	bh.Use(middleware.Recoverer)
	bh.Use(middleware.Compress(5))
	bh.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Rail-Signature"},
	}))

	bh.Get("/health", bh.health())

	bh.Post("/api/webhooks/charge-rail", bh.chargeRailWebhook())

	bh.Route("/api/orders", func(r chi.Router) {
		r.Post("/", bh.createOrder())
		r.Get("/{orderID}", bh.getOrder())
		r.Post("/{orderID}/assign", bh.assignOrder())
		r.Post("/{orderID}/events/{event}", bh.fireOrderEvent())
	})

	bh.Route("/api/wallet/{contractorID}", func(r chi.Router) {
		r.Get("/balance", bh.getBalance())
		r.Get("/payouts", bh.listPayouts())
		r.Post("/payout", bh.requestPayout())
	})

	bh.Route("/api/admin", func(r chi.Router) {
		r.Use(adminAuth(bh.adminToken))
		r.Post("/contractors", bh.createContractor())
		r.Post("/contractors/{contractorID}/mature", bh.matureBalance())
		r.Post("/orders/{orderID}/review", bh.reviewOrder())
	})

	return bh
}
