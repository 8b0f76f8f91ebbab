// Package payout moves matured funds off-platform and reconciles the result.
// A payout walks PENDING -> PROCESSING -> SUCCESS | FAILED; both the polling
// sweep and the inbound webhook converge on the same transition function,
// with the remote processor as the authority.
package payout

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

var ErrAccountNotReady = errors.New("payout account not ready")
var ErrInvalidAmount = errors.New("payout amount must be positive")
var ErrReconciliationConflict = errors.New("remote status contradicts terminal local status")

// DefaultCooldown is the minimum spacing between two payout requests of the
// same contractor.
const DefaultCooldown = 7 * 24 * time.Hour

const railAttempts = 3
const railBackoff = 500 * time.Millisecond

const payoutNote = "skillmarket earnings payout"

// clientItemID is the rail-side dedupe key of a payout; resubmitting the
// same id can never move money twice.
func clientItemID(payoutID int64) string {
	return "payout-" + strconv.FormatInt(payoutID, 10)
}

// statusRank orders payout statuses along the monotonic lifecycle; a remote
// status of lower rank than the local one is stale and ignored.
var statusRank = map[entity.PayoutStatus]int{
	entity.PayoutPending:    0,
	entity.PayoutProcessing: 1,
	entity.PayoutSuccess:    2,
	entity.PayoutFailed:     2,
}

type Orchestrator struct {
	repo     storage.Repository
	rail     rails.PayoutRail
	cooldown time.Duration
	now      func() time.Time
}

func NewOrchestrator(repo storage.Repository, rail rails.PayoutRail, cooldown time.Duration) *Orchestrator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Orchestrator{
		repo:     repo,
		rail:     rail,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock overrides the clock for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.now = clock
	return o
}

// Initiate debits the contractor's available balance and submits the payout
// to the rail. The readiness check runs before any balance mutation. The
// debit happens before the rail call, so an initiation error is compensated
// by restoring the exact pre-debit balance; the rail call itself is never
// retried automatically.
func (o *Orchestrator) Initiate(ctx context.Context, contractorID int64, amount decimal.Decimal) (entity.Payout, error) {
	if !amount.IsPositive() {
		return entity.Payout{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.StringFixed(2))
	}

	c, err := o.repo.GetContractor(ctx, contractorID)
	if err != nil {
		return entity.Payout{}, err
	}
	if !c.PayoutAccountReady {
		verified, err := o.rail.CheckRecipient(ctx, c.PayoutRecipient)
		if err != nil || !verified {
			if err != nil {
				log.Warn().Err(err).Int64("contractor_id", contractorID).Msg("recipient capability check failed")
			}
			return entity.Payout{}, fmt.Errorf("%w: contractor %d", ErrAccountNotReady, contractorID)
		}
		if err := o.repo.SetPayoutAccountReady(ctx, contractorID, true); err != nil {
			return entity.Payout{}, err
		}
	}

	prevWithdrawal, err := o.repo.DebitAvailable(ctx, contractorID, amount, o.now(), o.cooldown)
	if err != nil {
		return entity.Payout{}, err
	}

	p, err := o.repo.CreatePayout(ctx, contractorID, amount)
	if err != nil {
		if rerr := o.repo.RestoreAvailable(ctx, contractorID, amount, prevWithdrawal); rerr != nil {
			log.Error().Err(rerr).Int64("contractor_id", contractorID).Msg("balance compensation failed")
		}
		return entity.Payout{}, err
	}

	res, err := o.rail.CreatePayout(ctx, c.PayoutRecipient, amount, "USD", payoutNote, clientItemID(p.PayoutID))
	if err != nil {
		if serr := o.repo.SetPayoutStatus(ctx, p.PayoutID, entity.PayoutPending, entity.PayoutFailed, err.Error(), nil); serr != nil {
			log.Error().Err(serr).Int64("payout_id", p.PayoutID).Msg("payout failure record failed")
		}
		if rerr := o.repo.RestoreAvailable(ctx, contractorID, amount, prevWithdrawal); rerr != nil {
			log.Error().Err(rerr).Int64("contractor_id", contractorID).Msg("balance compensation failed")
		}
		log.Error().
			Err(err).
			Int64("payout_id", p.PayoutID).
			Int64("contractor_id", contractorID).
			Str("amount", amount.StringFixed(2)).
			Msg("payout initiation failed, balance restored")
		failed, gerr := o.repo.GetPayout(ctx, p.PayoutID)
		if gerr != nil {
			return entity.Payout{}, gerr
		}
		return failed, err
	}

	if err := o.repo.MarkPayoutProcessing(ctx, p.PayoutID, res.BatchID, res.ItemID, res.Raw); err != nil {
		// the money is already moving; the polling sweep re-submits the row
		// under the same client item id and records the rail ids then
		log.Error().Err(err).Int64("payout_id", p.PayoutID).Msg("payout processing mark failed")
	}

	log.Info().
		Int64("payout_id", p.PayoutID).
		Int64("contractor_id", contractorID).
		Str("amount", amount.StringFixed(2)).
		Str("batch_id", res.BatchID).
		Msg("payout initiated")
	return o.repo.GetPayout(ctx, p.PayoutID)
}

// applyRemoteStatus is the single idempotent transition function shared by
// polling and webhook reconciliation. Re-applying the current status is a
// no-op that leaves the record untouched; a remote status contradicting an
// already-terminal local one raises ErrReconciliationConflict.
func (o *Orchestrator) applyRemoteStatus(ctx context.Context, p entity.Payout, remote entity.PayoutStatus, reason string, raw []byte) error {
	if remote == p.Status {
		return nil
	}
	if p.Status.Terminal() {
		log.Error().
			Int64("payout_id", p.PayoutID).
			Str("local", string(p.Status)).
			Str("remote", string(remote)).
			Msg("reconciliation conflict")
		return fmt.Errorf("%w: payout %d local %s remote %s", ErrReconciliationConflict, p.PayoutID, p.Status, remote)
	}
	if statusRank[remote] < statusRank[p.Status] {
		return nil
	}

	err := o.repo.SetPayoutStatus(ctx, p.PayoutID, p.Status, remote, reason, raw)
	if errors.Is(err, storage.ErrStaleState) {
		// the other reconciliation path got there first
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Int64("payout_id", p.PayoutID).
		Str("from", string(p.Status)).
		Str("to", string(remote)).
		Msg("payout status reconciled")
	return nil
}

// mapRemoteStatus translates a processor status string into the local
// lifecycle.
func mapRemoteStatus(remote string) (entity.PayoutStatus, bool) {
	switch remote {
	case "PENDING", "NEW":
		return entity.PayoutPending, true
	case "PROCESSING", "UNCLAIMED", "ONHOLD":
		return entity.PayoutProcessing, true
	case "SUCCESS", "COMPLETED", "PAID":
		return entity.PayoutSuccess, true
	case "FAILED", "DENIED", "RETURNED", "BLOCKED", "CANCELED":
		return entity.PayoutFailed, true
	}
	return "", false
}

func failureReason(status entity.PayoutStatus, remote string) string {
	if status == entity.PayoutFailed {
		return "rail reported " + remote
	}
	return ""
}
