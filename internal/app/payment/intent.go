// Package payment owns the held charge attached to an order: opening the
// hold at assignment, redirecting it on re-assignment and capturing it once
// the order is complete and admin reviewed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/rails"
	"github.com/skillmarket/backend/internal/app/storage"
)

var ErrNotCaptureReady = errors.New("order not ready for capture")
var ErrHoldNotReady = errors.New("order not ready for a hold")

// workerRate is the canonical share of an order that belongs to the worker.
// It is applied exactly once, at hold-open; capture always trusts the stored
// split.
var workerRate = decimal.NewFromFloat(0.65)

const railAttempts = 3
const railBackoff = 500 * time.Millisecond

type IntentManager struct {
	repo   storage.Repository
	charge rails.ChargeRail
	now    func() time.Time
}

func NewIntentManager(repo storage.Repository, charge rails.ChargeRail) *IntentManager {
	return &IntentManager{
		repo:   repo,
		charge: charge,
		now:    time.Now,
	}
}

// WithClock overrides the clock for tests.
func (m *IntentManager) WithClock(clock func() time.Time) *IntentManager {
	m.now = clock
	return m
}

// Split computes the worker/company division of a total at the canonical
// rate. The two parts always sum to the total.
func Split(total decimal.Decimal) (worker, company decimal.Decimal) {
	worker = total.Mul(workerRate).Round(2)
	company = total.Sub(worker)
	return worker, company
}

// OpenHold authorizes (without capturing) the order total against the
// customer's card and records the charge reference plus the earnings split.
// The order must be assigned to a worker and must not already carry a hold.
func (m *IntentManager) OpenHold(ctx context.Context, orderID int64) error {
	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.State != entity.OrderAssigned {
		return fmt.Errorf("%w: order %d is %s", ErrHoldNotReady, orderID, o.State)
	}
	if !o.WorkerID.Valid {
		return fmt.Errorf("%w: order %d has no worker", ErrHoldNotReady, orderID)
	}
	if o.ChargeRef.Valid {
		return fmt.Errorf("%w: order %d already holds %s", storage.ErrHoldExists, orderID, o.ChargeRef.String)
	}

	workerShare, companyShare := Split(o.TotalPrice)

	metadata := map[string]string{
		"order_id":  strconv.FormatInt(orderID, 10),
		"worker_id": strconv.FormatInt(o.WorkerID.Int64, 10),
	}
	holdRef, err := m.charge.Authorize(ctx, o.TotalPrice, "USD", metadata)
	if err != nil {
		return err
	}

	if err := m.repo.SetOrderHold(ctx, orderID, holdRef, workerShare, companyShare); err != nil {
		return err
	}

	log.Info().
		Int64("order_id", orderID).
		Str("charge_ref", holdRef).
		Str("worker_earned", workerShare.StringFixed(2)).
		Str("company_earned", companyShare.StringFixed(2)).
		Msg("hold opened")
	return nil
}

// Capture finalizes the hold of a complete, admin-reviewed order and credits
// the worker's pending balance with the stored worker share. Idempotent: an
// already-captured order is a no-op, and concurrent invocations credit once.
// A hold the rail does not yet consider capturable is logged and skipped;
// the triggering job simply re-invokes later.
func (m *IntentManager) Capture(ctx context.Context, orderID int64) error {
	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.CapturedAt.Valid {
		return nil
	}
	if o.State != entity.OrderComplete {
		return fmt.Errorf("%w: order %d is %s", ErrNotCaptureReady, orderID, o.State)
	}
	if !o.AdminReviewedAt.Valid {
		return fmt.Errorf("%w: order %d not admin reviewed", ErrNotCaptureReady, orderID)
	}
	if !o.ChargeRef.Valid {
		return fmt.Errorf("%w: order %d has no hold", ErrNotCaptureReady, orderID)
	}

	var hold rails.Hold
	err = rails.WithRetry(ctx, railAttempts, railBackoff, func() error {
		var qerr error
		hold, qerr = m.charge.Query(ctx, o.ChargeRef.String)
		return qerr
	})
	if err != nil {
		return err
	}
	if !hold.Capturable {
		log.Warn().
			Int64("order_id", orderID).
			Str("charge_ref", o.ChargeRef.String).
			Str("hold_status", hold.Status).
			Msg("hold not capturable, will retry")
		return nil
	}

	// the order id keys the remote capture, so a retry after a local failure
	// cannot double-move funds
	idemKey := "capture-" + strconv.FormatInt(orderID, 10)
	err = rails.WithRetry(ctx, railAttempts, railBackoff, func() error {
		_, cerr := m.charge.Capture(ctx, o.ChargeRef.String, idemKey)
		return cerr
	})
	if err != nil {
		return err
	}

	workerEarned := o.WorkerEarned.Decimal
	if !o.WorkerEarned.Valid {
		workerEarned, _ = Split(o.TotalPrice)
		log.Warn().
			Int64("order_id", orderID).
			Str("worker_earned", workerEarned.StringFixed(2)).
			Msg("stored split missing at capture, recomputed at canonical rate")
	}

	claimed, credited, err := m.repo.CaptureOrderAndCredit(ctx, orderID, workerEarned, m.now())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if !credited {
		log.Warn().
			Int64("order_id", orderID).
			Msg("captured without ledger credit: worker has no payout account yet")
	}

	log.Info().
		Int64("order_id", orderID).
		Str("worker_earned", workerEarned.StringFixed(2)).
		Bool("credited", credited).
		Msg("hold captured")
	return nil
}

// RedirectHold points the hold's worker metadata at the order's current
// worker after a re-assignment. A worker without a payout account, or a rail
// error, leaves the hold against the platform and is only logged.
func (m *IntentManager) RedirectHold(ctx context.Context, orderID int64) error {
	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.ChargeRef.Valid || !o.WorkerID.Valid {
		return nil
	}

	metadata := map[string]string{
		"order_id":  strconv.FormatInt(orderID, 10),
		"worker_id": strconv.FormatInt(o.WorkerID.Int64, 10),
	}

	c, err := m.repo.GetContractorByWorker(ctx, o.WorkerID.Int64)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Warn().
			Int64("order_id", orderID).
			Int64("worker_id", o.WorkerID.Int64).
			Msg("reassigned worker has no payout account, hold stays with platform")
	case err != nil:
		return err
	default:
		metadata["destination"] = c.PayoutRecipient
	}

	if err := m.charge.UpdateMetadata(ctx, o.ChargeRef.String, metadata); err != nil {
		log.Warn().
			Err(err).
			Int64("order_id", orderID).
			Str("charge_ref", o.ChargeRef.String).
			Msg("hold metadata update failed")
	}
	return nil
}
