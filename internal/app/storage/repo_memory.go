package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
)

type creditKey struct {
	contractorID int64
	orderID      int64
}

// RepoMemory is an in-process Repository with the same semantics as RepoDB.
// A single mutex stands in for the per-contractor row locks.
type RepoMemory struct {
	mu          sync.Mutex
	orders      map[int64]*entity.Order
	contractors map[int64]*entity.Contractor
	payouts     map[int64]*entity.Payout
	credits     map[creditKey]decimal.Decimal
	nextOrder   int64
	nextContr   int64
	nextPayout  int64
}

func NewRepoMemory() *RepoMemory {
	return &RepoMemory{
		orders:      make(map[int64]*entity.Order),
		contractors: make(map[int64]*entity.Contractor),
		payouts:     make(map[int64]*entity.Payout),
		credits:     make(map[creditKey]decimal.Decimal),
	}
}

func (r *RepoMemory) CreateOrder(_ context.Context, totalPrice decimal.Decimal) (entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextOrder++
	o := &entity.Order{
		OrderID:    r.nextOrder,
		TotalPrice: totalPrice,
		State:      entity.OrderOpen,
		CreatedAt:  time.Now(),
	}
	r.orders[o.OrderID] = o
	return *o, nil
}

func (r *RepoMemory) GetOrder(_ context.Context, orderID int64) (entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return entity.Order{}, ErrNotFound
	}
	return *o, nil
}

func (r *RepoMemory) TransitionOrder(_ context.Context, orderID int64, from, to entity.OrderState, workerID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.State != from {
		return ErrStaleState
	}
	o.State = to
	if workerID != nil {
		o.WorkerID = sql.NullInt64{Int64: *workerID, Valid: true}
	}
	return nil
}

func (r *RepoMemory) SetOrderHold(_ context.Context, orderID int64, chargeRef string, workerEarned, companyEarned decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.ChargeRef.Valid {
		return ErrHoldExists
	}
	o.ChargeRef = sql.NullString{String: chargeRef, Valid: true}
	o.WorkerEarned = decimal.NullDecimal{Decimal: workerEarned, Valid: true}
	o.CompanyEarned = decimal.NullDecimal{Decimal: companyEarned, Valid: true}
	return nil
}

func (r *RepoMemory) SetOrderAdminReviewed(_ context.Context, orderID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if !o.AdminReviewedAt.Valid {
		o.AdminReviewedAt = sql.NullTime{Time: at, Valid: true}
	}
	return nil
}

func (r *RepoMemory) contractorByWorker(workerID int64) *entity.Contractor {
	for _, c := range r.contractors {
		if c.WorkerID == workerID {
			return c
		}
	}
	return nil
}

func (r *RepoMemory) CaptureOrderAndCredit(_ context.Context, orderID int64, workerEarned decimal.Decimal, at time.Time) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return false, false, ErrNotFound
	}
	if o.CapturedAt.Valid {
		return false, false, nil
	}
	o.CapturedAt = sql.NullTime{Time: at, Valid: true}

	credited := false
	if o.WorkerID.Valid {
		if c := r.contractorByWorker(o.WorkerID.Int64); c != nil {
			r.credits[creditKey{c.ContractorID, orderID}] = workerEarned
			c.PendingBalance = c.PendingBalance.Add(workerEarned)
			credited = true
		}
	}
	return true, credited, nil
}

func (r *RepoMemory) ListMaturableOrders(_ context.Context, cutoff time.Time) ([]entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []entity.Order
	for _, o := range r.orders {
		if !o.CapturedAt.Valid || o.CapturedAt.Time.After(cutoff) || o.MaturedAt.Valid || !o.WorkerID.Valid {
			continue
		}
		c := r.contractorByWorker(o.WorkerID.Int64)
		if c == nil {
			continue
		}
		if _, ok := r.credits[creditKey{c.ContractorID, o.OrderID}]; !ok {
			continue
		}
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CapturedAt.Time.Before(orders[j].CapturedAt.Time) })
	return orders, nil
}

func (r *RepoMemory) MatureOrder(_ context.Context, orderID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	if !o.CapturedAt.Valid || o.MaturedAt.Valid || !o.WorkerID.Valid || !o.WorkerEarned.Valid {
		return decimal.Zero, nil
	}
	c := r.contractorByWorker(o.WorkerID.Int64)
	if c == nil {
		return decimal.Zero, nil
	}
	if _, okc := r.credits[creditKey{c.ContractorID, orderID}]; !okc {
		return decimal.Zero, nil
	}

	amount := o.WorkerEarned.Decimal
	if c.PendingBalance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}
	c.PendingBalance = c.PendingBalance.Sub(amount)
	c.AvailableBalance = c.AvailableBalance.Add(amount)
	c.TotalEarned = c.TotalEarned.Add(amount)
	o.MaturedAt = sql.NullTime{Time: time.Now(), Valid: true}
	return amount, nil
}

func (r *RepoMemory) ListCapturedOrdersBefore(_ context.Context, workerID int64, before time.Time) ([]entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []entity.Order
	for _, o := range r.orders {
		if o.WorkerID.Valid && o.WorkerID.Int64 == workerID && o.CapturedAt.Valid && o.CapturedAt.Time.Before(before) {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CapturedAt.Time.Before(orders[j].CapturedAt.Time) })
	return orders, nil
}

func (r *RepoMemory) CreateContractor(_ context.Context, workerID int64, recipient string) (entity.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.contractorByWorker(workerID); c != nil {
		return *c, nil
	}
	r.nextContr++
	c := &entity.Contractor{
		ContractorID:    r.nextContr,
		WorkerID:        workerID,
		PayoutRecipient: recipient,
		CreatedAt:       time.Now(),
	}
	r.contractors[c.ContractorID] = c
	return *c, nil
}

func (r *RepoMemory) GetContractor(_ context.Context, contractorID int64) (entity.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return entity.Contractor{}, ErrNotFound
	}
	return *c, nil
}

func (r *RepoMemory) GetContractorByWorker(_ context.Context, workerID int64) (entity.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.contractorByWorker(workerID)
	if c == nil {
		return entity.Contractor{}, ErrNotFound
	}
	return *c, nil
}

func (r *RepoMemory) SetPayoutAccountReady(_ context.Context, contractorID int64, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return ErrNotFound
	}
	c.PayoutAccountReady = ready
	return nil
}

func (r *RepoMemory) CreditPending(_ context.Context, contractorID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return ErrNotFound
	}
	c.PendingBalance = c.PendingBalance.Add(amount)
	return nil
}

// unmaturedShares returns the contractor's credited, unmatured order shares
// oldest first. Callers hold the mutex.
func (r *RepoMemory) unmaturedShares(contractorID int64) []*entity.Order {
	var orders []*entity.Order
	for k := range r.credits {
		if k.contractorID != contractorID {
			continue
		}
		o, ok := r.orders[k.orderID]
		if !ok || o.MaturedAt.Valid {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CapturedAt.Time.Before(orders[j].CapturedAt.Time) })
	return orders
}

func (r *RepoMemory) MatureToAvailable(_ context.Context, contractorID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return ErrNotFound
	}
	if c.PendingBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	shares := r.unmaturedShares(contractorID)
	backed := decimal.Zero
	remaining := amount
	var stamp []*entity.Order
	for _, o := range shares {
		share := r.credits[creditKey{contractorID, o.OrderID}]
		backed = backed.Add(share)
		if remaining.LessThan(share) {
			continue
		}
		stamp = append(stamp, o)
		remaining = remaining.Sub(share)
	}
	if remaining.GreaterThan(c.PendingBalance.Sub(backed)) {
		return ErrSplitsOrderShare
	}

	now := time.Now()
	for _, o := range stamp {
		o.MaturedAt = sql.NullTime{Time: now, Valid: true}
	}
	c.PendingBalance = c.PendingBalance.Sub(amount)
	c.AvailableBalance = c.AvailableBalance.Add(amount)
	c.TotalEarned = c.TotalEarned.Add(amount)
	return nil
}

func (r *RepoMemory) MatureAllPending(_ context.Context, contractorID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	moved := c.PendingBalance
	if moved.IsZero() {
		return decimal.Zero, nil
	}

	now := time.Now()
	for _, o := range r.unmaturedShares(contractorID) {
		o.MaturedAt = sql.NullTime{Time: now, Valid: true}
	}
	c.PendingBalance = decimal.Zero
	c.AvailableBalance = c.AvailableBalance.Add(moved)
	c.TotalEarned = c.TotalEarned.Add(moved)
	return moved, nil
}

func (r *RepoMemory) DebitAvailable(_ context.Context, contractorID int64, amount decimal.Decimal, now time.Time, cooldown time.Duration) (sql.NullTime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return sql.NullTime{}, ErrNotFound
	}
	if c.LastWithdrawalAt.Valid && now.Sub(c.LastWithdrawalAt.Time) < cooldown {
		return sql.NullTime{}, ErrWithdrawalCooldown
	}
	if c.AvailableBalance.LessThan(amount) {
		return sql.NullTime{}, ErrInsufficientBalance
	}
	prev := c.LastWithdrawalAt
	c.AvailableBalance = c.AvailableBalance.Sub(amount)
	c.LastWithdrawalAt = sql.NullTime{Time: now, Valid: true}
	return prev, nil
}

func (r *RepoMemory) RestoreAvailable(_ context.Context, contractorID int64, amount decimal.Decimal, prevWithdrawal sql.NullTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return ErrNotFound
	}
	c.AvailableBalance = c.AvailableBalance.Add(amount)
	c.LastWithdrawalAt = prevWithdrawal
	return nil
}

func (r *RepoMemory) CreditRetroactive(_ context.Context, contractorID, orderID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contractors[contractorID]
	if !ok {
		return ErrNotFound
	}
	key := creditKey{contractorID, orderID}
	if _, okc := r.credits[key]; okc {
		return ErrAlreadyCredited
	}
	r.credits[key] = amount
	c.PendingBalance = c.PendingBalance.Add(amount)
	return nil
}

func (r *RepoMemory) CreatePayout(_ context.Context, contractorID int64, amount decimal.Decimal) (entity.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contractors[contractorID]; !ok {
		return entity.Payout{}, fmt.Errorf("create payout: %w", ErrNotFound)
	}
	r.nextPayout++
	now := time.Now()
	p := &entity.Payout{
		PayoutID:     r.nextPayout,
		ContractorID: contractorID,
		Amount:       amount,
		Status:       entity.PayoutPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.payouts[p.PayoutID] = p
	return *p, nil
}

func (r *RepoMemory) GetPayout(_ context.Context, payoutID int64) (entity.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payouts[payoutID]
	if !ok {
		return entity.Payout{}, ErrNotFound
	}
	return *p, nil
}

func (r *RepoMemory) GetPayoutByExternalItem(_ context.Context, itemID string) (entity.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payouts {
		if p.ExternalItemID.Valid && p.ExternalItemID.String == itemID {
			return *p, nil
		}
	}
	return entity.Payout{}, ErrNotFound
}

func (r *RepoMemory) ListPayoutsByStatus(_ context.Context, statuses ...entity.PayoutStatus) ([]entity.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payouts []entity.Payout
	for _, p := range r.payouts {
		for _, s := range statuses {
			if p.Status == s {
				payouts = append(payouts, *p)
				break
			}
		}
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].PayoutID < payouts[j].PayoutID })
	return payouts, nil
}

func (r *RepoMemory) ListPayoutsByContractor(_ context.Context, contractorID int64) ([]entity.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payouts []entity.Payout
	for _, p := range r.payouts {
		if p.ContractorID == contractorID {
			payouts = append(payouts, *p)
		}
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].PayoutID < payouts[j].PayoutID })
	return payouts, nil
}

func (r *RepoMemory) MarkPayoutProcessing(_ context.Context, payoutID int64, batchID, itemID string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payouts[payoutID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != entity.PayoutPending {
		return ErrStaleState
	}
	p.Status = entity.PayoutProcessing
	p.ExternalBatchID = sql.NullString{String: batchID, Valid: true}
	p.ExternalItemID = sql.NullString{String: itemID, Valid: true}
	p.RawResponse = raw
	p.UpdatedAt = time.Now()
	return nil
}

func (r *RepoMemory) SetPayoutStatus(_ context.Context, payoutID int64, from, to entity.PayoutStatus, failureReason string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payouts[payoutID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrStaleState
	}
	p.Status = to
	if failureReason != "" {
		p.FailureReason = sql.NullString{String: failureReason, Valid: true}
	}
	if raw != nil {
		p.RawResponse = raw
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *RepoMemory) Ping(_ context.Context) error {
	return nil
}

func (r *RepoMemory) Close() {}
