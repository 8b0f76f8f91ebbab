package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/rails"
)

const pollWorkers = 4

// Event is a signed webhook payload from the charge rail's payout/transfer
// lifecycle. Signature verification happens at the HTTP boundary before an
// Event reaches this package.
type Event struct {
	EventType  string          `json:"event_type"`
	ResourceID string          `json:"resource_id"`
	Status     string          `json:"status"`
	Raw        json.RawMessage `json:"raw_object"`
}

// HandleEvent applies a webhook event to the payout it references. Events
// for other resource families are ignored; events referencing unknown
// payouts or carrying unknown statuses are rejected with an error so the
// rail redelivers them — financial events are never dropped silently.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) error {
	if !strings.HasPrefix(ev.EventType, "payout.") && !strings.HasPrefix(ev.EventType, "transfer.") {
		log.Debug().Str("event_type", ev.EventType).Msg("webhook event ignored")
		return nil
	}

	p, err := o.repo.GetPayoutByExternalItem(ctx, ev.ResourceID)
	if err != nil {
		log.Warn().
			Str("event_type", ev.EventType).
			Str("resource_id", ev.ResourceID).
			Msg("webhook event references unknown payout")
		return err
	}

	remote, ok := mapRemoteStatus(ev.Status)
	if !ok {
		log.Warn().
			Int64("payout_id", p.PayoutID).
			Str("status", ev.Status).
			Msg("webhook event carries unknown status")
		return fmt.Errorf("unknown payout status %q", ev.Status)
	}

	return o.applyRemoteStatus(ctx, p, remote, failureReason(remote, ev.Status), ev.Raw)
}

// PollOnce queries the rail for every open payout and applies the remote
// status. Per-payout failures are logged and skipped so one flaky query does
// not stall the sweep; this sweep is the backstop for anything the webhook
// path missed.
func (o *Orchestrator) PollOnce(ctx context.Context) error {
	payouts, err := o.repo.ListPayoutsByStatus(ctx, entity.PayoutPending, entity.PayoutProcessing)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pollWorkers)
	for _, p := range payouts {
		p := p
		if !p.ExternalBatchID.Valid || !p.ExternalItemID.Valid {
			// initiation never recorded the rail ids; the contractor is
			// already debited, so the row must be re-submitted, not skipped
			if p.Status == entity.PayoutPending {
				g.Go(func() error {
					o.resubmit(ctx, p)
					return nil
				})
			}
			continue
		}
		g.Go(func() error {
			var status string
			var raw json.RawMessage
			err := rails.WithRetry(ctx, railAttempts, railBackoff, func() error {
				var qerr error
				status, raw, qerr = o.rail.QueryPayout(ctx, p.ExternalBatchID.String, p.ExternalItemID.String)
				return qerr
			})
			if err != nil {
				log.Warn().Err(err).Int64("payout_id", p.PayoutID).Msg("payout status query failed")
				return nil
			}

			remote, ok := mapRemoteStatus(status)
			if !ok {
				log.Warn().Int64("payout_id", p.PayoutID).Str("status", status).Msg("rail returned unknown status")
				return nil
			}

			if err := o.applyRemoteStatus(ctx, p, remote, failureReason(remote, status), raw); err != nil {
				if errors.Is(err, ErrReconciliationConflict) {
					return nil
				}
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// resubmit re-sends a payout stranded in PENDING without rail ids, the state
// left behind when a successful CreatePayout could not be recorded locally.
// The deterministic client item id makes the second submission dedupe-safe
// on the rail side. Failures are logged for the next sweep to retry.
func (o *Orchestrator) resubmit(ctx context.Context, p entity.Payout) {
	c, err := o.repo.GetContractor(ctx, p.ContractorID)
	if err != nil {
		log.Error().Err(err).Int64("payout_id", p.PayoutID).Msg("stranded payout contractor lookup failed")
		return
	}

	res, err := o.rail.CreatePayout(ctx, c.PayoutRecipient, p.Amount, "USD", payoutNote, clientItemID(p.PayoutID))
	if err != nil {
		log.Error().
			Err(err).
			Int64("payout_id", p.PayoutID).
			Int64("contractor_id", p.ContractorID).
			Msg("stranded payout resubmission failed")
		return
	}

	if err := o.repo.MarkPayoutProcessing(ctx, p.PayoutID, res.BatchID, res.ItemID, res.Raw); err != nil {
		log.Error().Err(err).Int64("payout_id", p.PayoutID).Msg("stranded payout still unrecorded")
		return
	}

	log.Info().
		Int64("payout_id", p.PayoutID).
		Str("batch_id", res.BatchID).
		Msg("stranded payout resubmitted")
}
