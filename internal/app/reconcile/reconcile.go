// Package reconcile back-fills earnings for orders that were captured before
// the worker's contractor account existed, so opting into payouts late never
// loses money.
package reconcile

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/skillmarket/backend/internal/app/storage"
)

type Reconciler struct {
	repo storage.Repository
}

func NewReconciler(repo storage.Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Run credits the contractor's pending balance with the worker share of
// every order captured before the contractor was created. The durable
// (contractor, order) settlement credit marker makes re-runs no-ops; the
// timestamp comparison only preselects candidates. Returns the number of
// orders credited.
func (r *Reconciler) Run(ctx context.Context, contractorID int64) (int, error) {
	c, err := r.repo.GetContractor(ctx, contractorID)
	if err != nil {
		return 0, err
	}

	orders, err := r.repo.ListCapturedOrdersBefore(ctx, c.WorkerID, c.CreatedAt)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, o := range orders {
		if !o.WorkerEarned.Valid {
			log.Warn().
				Int64("order_id", o.OrderID).
				Int64("contractor_id", contractorID).
				Msg("captured order has no stored worker share, skipping")
			continue
		}

		err := r.repo.CreditRetroactive(ctx, contractorID, o.OrderID, o.WorkerEarned.Decimal)
		if errors.Is(err, storage.ErrAlreadyCredited) {
			continue
		}
		if err != nil {
			return credited, err
		}

		credited++
		log.Info().
			Int64("order_id", o.OrderID).
			Int64("contractor_id", contractorID).
			Str("amount", o.WorkerEarned.Decimal.StringFixed(2)).
			Msg("retroactive earnings credited")
	}
	return credited, nil
}
