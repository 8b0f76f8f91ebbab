// Package rails defines the capability contracts of the two external money
// movement processors and their HTTP clients. The core never talks to a
// processor except through these interfaces.
package rails

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRailUnavailable marks transient transport failures; idempotent calls may
// be retried. ErrRailRejected marks a definitive refusal and is never retried.
var ErrRailUnavailable = errors.New("money rail unavailable")
var ErrRailRejected = errors.New("money rail rejected request")

// Hold describes the current state of an authorize-only charge.
type Hold struct {
	Ref        string          `json:"ref"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Capturable bool            `json:"capturable"`
}

// CaptureResult is the outcome of finalizing a hold.
type CaptureResult struct {
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	Status         string          `json:"status"`
}

// ChargeRail is the card-processing capability the core consumes.
type ChargeRail interface {
	Authorize(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, error)
	Capture(ctx context.Context, holdRef string, idempotencyKey string) (CaptureResult, error)
	Query(ctx context.Context, holdRef string) (Hold, error)
	UpdateMetadata(ctx context.Context, holdRef string, metadata map[string]string) error
	Transfer(ctx context.Context, destination string, amount decimal.Decimal) (string, error)
}

// PayoutResult is the processor's answer to a batch payout initiation.
type PayoutResult struct {
	BatchID string
	ItemID  string
	Status  string
	Raw     json.RawMessage
}

// PayoutRail is the batch-payout capability the core consumes.
type PayoutRail interface {
	// CreatePayout is NOT idempotent on the rail side unless clientItemID is
	// honored; callers must never retry it automatically.
	CreatePayout(ctx context.Context, recipient string, amount decimal.Decimal, currency, note, clientItemID string) (PayoutResult, error)
	QueryPayout(ctx context.Context, batchID, itemID string) (string, json.RawMessage, error)
	CheckRecipient(ctx context.Context, recipient string) (bool, error)
}

// WithRetry runs fn up to attempts times with doubling backoff, stopping
// early on success, on a definitive rejection, or on context cancellation.
// Only idempotent rail calls may be wrapped.
func WithRetry(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || errors.Is(err, ErrRailRejected) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
