// Package ledger exposes the per-contractor balance operations: crediting
// captured earnings into the pending bucket, maturing them into available
// and the scheduled sweep that ages pending credits out of the holding
// period. The per-contractor serialization lives in the repository; this
// layer adds policy and logging.
package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/storage"
)

// DefaultHoldingPeriod is how long a captured credit waits in pending before
// the sweep matures it.
const DefaultHoldingPeriod = 7 * 24 * time.Hour

type Service struct {
	repo          storage.Repository
	holdingPeriod time.Duration
	now           func() time.Time
}

func NewService(repo storage.Repository, holdingPeriod time.Duration) *Service {
	if holdingPeriod <= 0 {
		holdingPeriod = DefaultHoldingPeriod
	}
	return &Service{
		repo:          repo,
		holdingPeriod: holdingPeriod,
		now:           time.Now,
	}
}

// WithClock overrides the clock for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.now = clock
	return s
}

func (s *Service) Balance(ctx context.Context, contractorID int64) (entity.Contractor, error) {
	return s.repo.GetContractor(ctx, contractorID)
}

func (s *Service) Payouts(ctx context.Context, contractorID int64) ([]entity.Payout, error) {
	return s.repo.ListPayoutsByContractor(ctx, contractorID)
}

func (s *Service) CreditPending(ctx context.Context, contractorID int64, amount decimal.Decimal) error {
	return s.repo.CreditPending(ctx, contractorID, amount)
}

// MatureToAvailable moves amount from pending to available and increases
// total_earned by the same amount; this is the only path that grows lifetime
// earnings.
func (s *Service) MatureToAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal) error {
	if err := s.repo.MatureToAvailable(ctx, contractorID, amount); err != nil {
		return err
	}
	log.Info().
		Int64("contractor_id", contractorID).
		Str("amount", amount.StringFixed(2)).
		Msg("pending matured to available")
	return nil
}

// MatureAllPending matures the whole pending bucket and returns the amount
// moved.
func (s *Service) MatureAllPending(ctx context.Context, contractorID int64) (decimal.Decimal, error) {
	moved, err := s.repo.MatureAllPending(ctx, contractorID)
	if err != nil {
		return decimal.Zero, err
	}
	if !moved.IsZero() {
		log.Info().
			Int64("contractor_id", contractorID).
			Str("amount", moved.StringFixed(2)).
			Msg("full pending balance matured")
	}
	return moved, nil
}

// MatureAgedPending matures exactly the worker shares of orders captured at
// least a holding period ago, order by order, so newer pending credits stay
// put. Returns the number of orders matured.
func (s *Service) MatureAgedPending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.holdingPeriod)
	orders, err := s.repo.ListMaturableOrders(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	matured := 0
	for _, o := range orders {
		amount, err := s.repo.MatureOrder(ctx, o.OrderID)
		if err != nil {
			log.Error().Err(err).Int64("order_id", o.OrderID).Msg("order maturation failed")
			continue
		}
		if amount.IsZero() {
			continue
		}
		matured++
		log.Info().
			Int64("order_id", o.OrderID).
			Str("amount", amount.StringFixed(2)).
			Msg("aged order earnings matured")
	}
	return matured, nil
}
