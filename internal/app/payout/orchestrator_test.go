package payout

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/rails"
	"github.com/skillmarket/backend/internal/app/storage"
)

// fakePayoutRail is a deterministic in-memory payout processor.
type fakePayoutRail struct {
	mu        sync.Mutex
	createErr error
	queryErr  error
	verified  bool
	statuses  map[string]string // itemID -> remote status
	creates   int
}

func newFakePayoutRail() *fakePayoutRail {
	return &fakePayoutRail{
		verified: true,
		statuses: make(map[string]string),
	}
}

func (f *fakePayoutRail) CreatePayout(_ context.Context, recipient string, amount decimal.Decimal, currency, note, clientItemID string) (rails.PayoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return rails.PayoutResult{}, f.createErr
	}
	itemID := "item-" + clientItemID
	f.statuses[itemID] = "PENDING"
	raw, _ := json.Marshal(map[string]string{"batch_id": "batch-1", "item_id": itemID})
	return rails.PayoutResult{BatchID: "batch-1", ItemID: itemID, Status: "PENDING", Raw: raw}, nil
}

func (f *fakePayoutRail) QueryPayout(_ context.Context, batchID, itemID string) (string, json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return "", nil, f.queryErr
	}
	status, ok := f.statuses[itemID]
	if !ok {
		return "", nil, rails.ErrRailRejected
	}
	raw, _ := json.Marshal(map[string]string{"item_id": itemID, "status": status})
	return status, raw, nil
}

func (f *fakePayoutRail) CheckRecipient(_ context.Context, recipient string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified, nil
}

func (f *fakePayoutRail) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakePayoutRail) setStatus(itemID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[itemID] = status
}

func seedContractor(t *testing.T, repo *storage.RepoMemory, workerID int64, available string) entity.Contractor {
	t.Helper()
	ctx := context.Background()

	c, err := repo.CreateContractor(ctx, workerID, "worker@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.SetPayoutAccountReady(ctx, c.ContractorID, true))

	amount := decimal.RequireFromString(available)
	if !amount.IsZero() {
		require.NoError(t, repo.CreditPending(ctx, c.ContractorID, amount))
		require.NoError(t, repo.MatureToAvailable(ctx, c.ContractorID, amount))
	}

	c, err = repo.GetContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	return c
}

func TestInitiate_Success(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 1, "120.00")

	p, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutProcessing, p.Status)
	require.True(t, p.ExternalBatchID.Valid)
	require.True(t, p.ExternalItemID.Valid)

	got, err := repo.GetContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	assert.True(t, got.AvailableBalance.Equal(decimal.RequireFromString("70.00")))
	assert.True(t, got.LastWithdrawalAt.Valid)
}

func TestInitiate_AccountNotReadyFailsBeforeDebit(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	rail.verified = false
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c, err := repo.CreateContractor(ctx, 2, "w2@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.CreditPending(ctx, c.ContractorID, decimal.RequireFromString("40.00")))
	require.NoError(t, repo.MatureToAvailable(ctx, c.ContractorID, decimal.RequireFromString("40.00")))

	_, err = o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("40.00"))
	assert.ErrorIs(t, err, ErrAccountNotReady)

	got, err := repo.GetContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	assert.True(t, got.AvailableBalance.Equal(decimal.RequireFromString("40.00")), "no balance mutation on readiness failure")
	assert.False(t, got.LastWithdrawalAt.Valid)

	payouts, err := repo.ListPayoutsByContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestInitiate_InsufficientBalance(t *testing.T) {
	repo := storage.NewRepoMemory()
	o := NewOrchestrator(repo, newFakePayoutRail(), DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 3, "10.00")

	_, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)
}

func TestInitiate_InvalidAmount(t *testing.T) {
	repo := storage.NewRepoMemory()
	o := NewOrchestrator(repo, newFakePayoutRail(), DefaultCooldown)

	_, err := o.Initiate(context.Background(), 1, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestInitiate_Cooldown(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	now := time.Now()
	o := NewOrchestrator(repo, rail, DefaultCooldown).WithClock(func() time.Time { return now })
	ctx := context.Background()

	c := seedContractor(t, repo, 4, "100.00")

	_, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	// 6 days later: still cooling down
	now = now.Add(6 * 24 * time.Hour)
	_, err = o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("10.00"))
	assert.ErrorIs(t, err, storage.ErrWithdrawalCooldown)

	// 8 days after the first withdrawal: allowed
	now = now.Add(2 * 24 * time.Hour)
	_, err = o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("10.00"))
	assert.NoError(t, err)
}

func TestInitiate_RailFailureRestoresBalance(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	rail.createErr = rails.ErrRailUnavailable
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 5, "80.00")

	p, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("80.00"))
	assert.ErrorIs(t, err, rails.ErrRailUnavailable)
	assert.Equal(t, entity.PayoutFailed, p.Status)
	require.True(t, p.FailureReason.Valid)

	got, err := repo.GetContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	assert.True(t, got.AvailableBalance.Equal(decimal.RequireFromString("80.00")), "pre-debit balance exactly restored")
	assert.False(t, got.LastWithdrawalAt.Valid, "cooldown stamp rolled back")

	// exactly one initiation attempt: no automatic retry of a non-idempotent call
	assert.Equal(t, 1, rail.creates)
}

func TestPollOnce_RemoteIsAuthoritative(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 6, "90.00")
	p, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("90.00"))
	require.NoError(t, err)

	rail.setStatus(p.ExternalItemID.String, "SUCCESS")
	require.NoError(t, o.PollOnce(ctx))

	got, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutSuccess, got.Status)

	// re-polling a terminal payout changes nothing
	before := got
	require.NoError(t, o.PollOnce(ctx))
	after, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPollOnce_ResubmitsStrandedPending(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	// a debited contractor with a PENDING payout and no rail ids: the state
	// a crash between the rail call and the local record leaves behind
	c := seedContractor(t, repo, 16, "80.00")
	p, err := repo.CreatePayout(ctx, c.ContractorID, decimal.RequireFromString("80.00"))
	require.NoError(t, err)
	_, err = repo.DebitAvailable(ctx, c.ContractorID, decimal.RequireFromString("80.00"), time.Now(), DefaultCooldown)
	require.NoError(t, err)

	require.NoError(t, o.PollOnce(ctx))

	got, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutProcessing, got.Status)
	require.True(t, got.ExternalItemID.Valid)
	assert.Equal(t, "item-payout-"+strconv.FormatInt(p.PayoutID, 10), got.ExternalItemID.String)
	assert.Equal(t, 1, rail.createCount())

	// the next sweep queries instead of re-submitting
	rail.setStatus(got.ExternalItemID.String, "SUCCESS")
	require.NoError(t, o.PollOnce(ctx))
	got, err = repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutSuccess, got.Status)
	assert.Equal(t, 1, rail.createCount())
}

func TestPollOnce_RailErrorLeavesStrandedPending(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	rail.createErr = rails.ErrRailUnavailable
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 17, "40.00")
	p, err := repo.CreatePayout(ctx, c.ContractorID, decimal.RequireFromString("40.00"))
	require.NoError(t, err)

	require.NoError(t, o.PollOnce(ctx))

	got, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutPending, got.Status, "stays visible to the next sweep")
	assert.False(t, got.ExternalItemID.Valid)
}

func TestApplyRemoteStatus_Monotonic(t *testing.T) {
	repo := storage.NewRepoMemory()
	o := NewOrchestrator(repo, newFakePayoutRail(), DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 7, "50.00")
	p, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	require.Equal(t, entity.PayoutProcessing, p.Status)

	// a stale PENDING report is ignored
	require.NoError(t, o.applyRemoteStatus(ctx, p, entity.PayoutPending, "", nil))
	got, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutProcessing, got.Status)

	require.NoError(t, o.applyRemoteStatus(ctx, got, entity.PayoutFailed, "rail reported FAILED", nil))
	got, err = repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutFailed, got.Status)

	// a contradicting terminal report is a conflict, not an update
	err = o.applyRemoteStatus(ctx, got, entity.PayoutSuccess, "", nil)
	assert.ErrorIs(t, err, ErrReconciliationConflict)
	unchanged, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutFailed, unchanged.Status)
}

func TestHandleEvent(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakePayoutRail()
	o := NewOrchestrator(repo, rail, DefaultCooldown)
	ctx := context.Background()

	c := seedContractor(t, repo, 8, "25.00")
	p, err := o.Initiate(ctx, c.ContractorID, decimal.RequireFromString("25.00"))
	require.NoError(t, err)

	ev := Event{
		EventType:  "payout.item.completed",
		ResourceID: p.ExternalItemID.String,
		Status:     "SUCCESS",
		Raw:        json.RawMessage(`{"status":"SUCCESS"}`),
	}
	require.NoError(t, o.HandleEvent(ctx, ev))

	got, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, entity.PayoutSuccess, got.Status)

	// re-delivering the same event leaves the record unchanged
	before := got
	require.NoError(t, o.HandleEvent(ctx, ev))
	after, err := repo.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHandleEvent_UnknownResourceRejected(t *testing.T) {
	repo := storage.NewRepoMemory()
	o := NewOrchestrator(repo, newFakePayoutRail(), DefaultCooldown)

	ev := Event{EventType: "payout.item.completed", ResourceID: "item-unknown", Status: "SUCCESS"}
	err := o.HandleEvent(context.Background(), ev)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleEvent_ForeignEventTypeIgnored(t *testing.T) {
	repo := storage.NewRepoMemory()
	o := NewOrchestrator(repo, newFakePayoutRail(), DefaultCooldown)

	ev := Event{EventType: "charge.succeeded", ResourceID: "ch-1", Status: "SUCCESS"}
	assert.NoError(t, o.HandleEvent(context.Background(), ev))
}

func TestMapRemoteStatus(t *testing.T) {
	cases := map[string]entity.PayoutStatus{
		"PENDING":    entity.PayoutPending,
		"PROCESSING": entity.PayoutProcessing,
		"UNCLAIMED":  entity.PayoutProcessing,
		"SUCCESS":    entity.PayoutSuccess,
		"COMPLETED":  entity.PayoutSuccess,
		"FAILED":     entity.PayoutFailed,
		"RETURNED":   entity.PayoutFailed,
		"DENIED":     entity.PayoutFailed,
	}
	for remote, want := range cases {
		got, ok := mapRemoteStatus(remote)
		require.True(t, ok, remote)
		assert.Equal(t, want, got, remote)
	}

	_, ok := mapRemoteStatus("SOMETHING_ELSE")
	assert.False(t, ok)
}
