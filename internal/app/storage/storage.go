package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
)

var ErrNotFound = errors.New("record not found")
var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrWithdrawalCooldown = errors.New("withdrawal cooldown active")
var ErrAlreadyCredited = errors.New("order already credited to contractor")
var ErrStaleState = errors.New("state changed concurrently")
var ErrHoldExists = errors.New("order already has a held charge")
var ErrSplitsOrderShare = errors.New("amount splits an unmatured order share")

// Repository is the persistence boundary of the settlement core. Every
// balance-mutating method is atomic with respect to its contractor row:
// concurrent jobs touching the same contractor serialize on a row lock.
type Repository interface {
	// orders
	CreateOrder(ctx context.Context, totalPrice decimal.Decimal) (entity.Order, error)
	GetOrder(ctx context.Context, orderID int64) (entity.Order, error)
	// TransitionOrder moves the order from -> to in a single compare-and-swap
	// update; a stale from-state yields ErrStaleState and no mutation.
	// A non-nil workerID is written together with the state.
	TransitionOrder(ctx context.Context, orderID int64, from, to entity.OrderState, workerID *int64) error
	// SetOrderHold records the hold reference and the earnings split.
	// The charge reference is set at most once (ErrHoldExists otherwise).
	SetOrderHold(ctx context.Context, orderID int64, chargeRef string, workerEarned, companyEarned decimal.Decimal) error
	SetOrderAdminReviewed(ctx context.Context, orderID int64, at time.Time) error
	// CaptureOrderAndCredit claims captured_at (at most once) and, in the same
	// transaction, credits the worker's contractor pending balance, recording
	// a settlement credit marker. claimed is false when another caller already
	// captured; credited is false when the worker has no contractor yet.
	CaptureOrderAndCredit(ctx context.Context, orderID int64, workerEarned decimal.Decimal, at time.Time) (claimed, credited bool, err error)
	// ListMaturableOrders returns credited, not yet matured orders captured
	// before cutoff.
	ListMaturableOrders(ctx context.Context, cutoff time.Time) ([]entity.Order, error)
	// MatureOrder moves the order's worker share from pending to available
	// (bumping total_earned) and stamps matured_at. Returns the amount moved;
	// zero when the order was already matured or never credited.
	MatureOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
	ListCapturedOrdersBefore(ctx context.Context, workerID int64, before time.Time) ([]entity.Order, error)

	// contractors
	CreateContractor(ctx context.Context, workerID int64, recipient string) (entity.Contractor, error)
	GetContractor(ctx context.Context, contractorID int64) (entity.Contractor, error)
	GetContractorByWorker(ctx context.Context, workerID int64) (entity.Contractor, error)
	SetPayoutAccountReady(ctx context.Context, contractorID int64, ready bool) error
	CreditPending(ctx context.Context, contractorID int64, amount decimal.Decimal) error
	// MatureToAvailable moves amount from pending to available and increases
	// total_earned by the same amount, all in one transaction. The amount is
	// consumed from the contractor's unmatured order shares oldest first,
	// stamping matured_at on each share it fully covers, so the aged sweep
	// never re-matures what an admin already moved. An amount that would
	// split an order's share yields ErrSplitsOrderShare and no mutation.
	MatureToAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal) error
	// MatureAllPending moves the whole pending bucket and stamps every
	// unmatured order share of the contractor.
	MatureAllPending(ctx context.Context, contractorID int64) (decimal.Decimal, error)
	// DebitAvailable checks the cooldown and the balance inside the
	// contractor's transaction, decrements available_balance and stamps
	// last_withdrawal_at. The previous stamp is returned so a failed payout
	// initiation can restore it.
	DebitAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal, now time.Time, cooldown time.Duration) (prevWithdrawal sql.NullTime, err error)
	RestoreAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal, prevWithdrawal sql.NullTime) error
	// CreditRetroactive credits pending for an order captured before the
	// contractor existed. The (contractor, order) settlement credit marker is
	// unique; a duplicate yields ErrAlreadyCredited and no mutation.
	CreditRetroactive(ctx context.Context, contractorID, orderID int64, amount decimal.Decimal) error

	// payouts
	CreatePayout(ctx context.Context, contractorID int64, amount decimal.Decimal) (entity.Payout, error)
	GetPayout(ctx context.Context, payoutID int64) (entity.Payout, error)
	GetPayoutByExternalItem(ctx context.Context, itemID string) (entity.Payout, error)
	ListPayoutsByStatus(ctx context.Context, statuses ...entity.PayoutStatus) ([]entity.Payout, error)
	ListPayoutsByContractor(ctx context.Context, contractorID int64) ([]entity.Payout, error)
	MarkPayoutProcessing(ctx context.Context, payoutID int64, batchID, itemID string, raw []byte) error
	// SetPayoutStatus is a compare-and-swap on the payout status; a stale
	// from-status yields ErrStaleState and no mutation.
	SetPayoutStatus(ctx context.Context, payoutID int64, from, to entity.PayoutStatus, failureReason string, raw []byte) error

	Ping(ctx context.Context) error
	Close()
}
