package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skillmarket/backend/internal/app/config"
	"github.com/skillmarket/backend/internal/app/handlers"
	"github.com/skillmarket/backend/internal/app/ledger"
	"github.com/skillmarket/backend/internal/app/order"
	"github.com/skillmarket/backend/internal/app/payment"
	"github.com/skillmarket/backend/internal/app/payout"
	"github.com/skillmarket/backend/internal/app/rails"
	"github.com/skillmarket/backend/internal/app/reconcile"
	"github.com/skillmarket/backend/internal/app/storage"
)

func Serve(cfg *config.Config) error {
	repo, err := storage.NewRepoDB(cfg.DatabaseURI)
	if err != nil {
		return err
	}
	defer repo.Close()

	chargeRail := rails.NewChargeClient(cfg.ChargeRailAddress, cfg.ChargeRailSecret, cfg.ClientTimeout)
	payoutRail := rails.NewPayoutClient(cfg.PayoutRailAddress, cfg.PayoutRailClientID, cfg.PayoutRailSecret, cfg.ClientTimeout)

	cooldown := time.Duration(cfg.WithdrawalCooldownDays) * 24 * time.Hour
	holding := time.Duration(cfg.HoldingPeriodDays) * 24 * time.Hour

	machine := order.NewMachine(repo)
	intents := payment.NewIntentManager(repo, chargeRail)
	ledgerSvc := ledger.NewService(repo, holding)
	orchestrator := payout.NewOrchestrator(repo, payoutRail, cooldown)
	reconciler := reconcile.NewReconciler(repo)

	baseHandler := handlers.NewBaseHandler(repo, machine, intents, ledgerSvc, orchestrator, reconciler, cfg.WebhookSecret, cfg.AdminToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweepLoop(ctx, "payout poll", time.Duration(cfg.PollInterval)*time.Second, func(ctx context.Context) error {
		return orchestrator.PollOnce(ctx)
	})
	go sweepLoop(ctx, "pending maturation", time.Duration(cfg.MatureInterval)*time.Second, func(ctx context.Context) error {
		_, err := ledgerSvc.MatureAgedPending(ctx)
		return err
	})

	srv := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: baseHandler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func sweepLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("sweep", name).Msg("sweep failed")
			}
		}
	}
}
