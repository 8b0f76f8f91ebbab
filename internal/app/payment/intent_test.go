package payment

import (
	"context"
	"errors"
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

// fakeChargeRail is a deterministic in-memory charge processor.
type fakeChargeRail struct {
	mu           sync.Mutex
	capturable   bool
	queryErr     error
	captureErr   error
	authorizeErr error
	captures     map[string]int
	metadata     map[string]map[string]string
	nextRef      int
}

func newFakeChargeRail() *fakeChargeRail {
	return &fakeChargeRail{
		capturable: true,
		captures:   make(map[string]int),
		metadata:   make(map[string]map[string]string),
	}
}

func (f *fakeChargeRail) Authorize(_ context.Context, amount decimal.Decimal, _ string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authorizeErr != nil {
		return "", f.authorizeErr
	}
	f.nextRef++
	ref := "hold-" + decimal.NewFromInt(int64(f.nextRef)).String()
	f.metadata[ref] = metadata
	return ref, nil
}

func (f *fakeChargeRail) Capture(_ context.Context, holdRef string, idempotencyKey string) (rails.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return rails.CaptureResult{}, f.captureErr
	}
	f.captures[idempotencyKey]++
	return rails.CaptureResult{Status: "captured"}, nil
}

func (f *fakeChargeRail) Query(_ context.Context, holdRef string) (rails.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return rails.Hold{}, f.queryErr
	}
	return rails.Hold{Ref: holdRef, Status: "held", Capturable: f.capturable}, nil
}

func (f *fakeChargeRail) UpdateMetadata(_ context.Context, holdRef string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[holdRef] = metadata
	return nil
}

func (f *fakeChargeRail) Transfer(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	return "transfer-1", nil
}

func seedCompleteOrder(t *testing.T, repo *storage.RepoMemory, total decimal.Decimal, workerID int64) entity.Order {
	t.Helper()
	ctx := context.Background()

	o, err := repo.CreateOrder(ctx, total)
	require.NoError(t, err)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderOpen, entity.OrderAssigned, &workerID))
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderAssigned, entity.OrderInProgress, nil))
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderInProgress, entity.OrderComplete, nil))
	require.NoError(t, repo.SetOrderAdminReviewed(ctx, o.OrderID, time.Now()))

	o, err = repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	return o
}

func TestSplit_SumsToTotal(t *testing.T) {
	for _, total := range []string{"100.00", "99.99", "0.01", "33.33", "12345.67"} {
		price := decimal.RequireFromString(total)
		worker, company := Split(price)
		assert.True(t, worker.Add(company).Equal(price), "split of %s", total)
		assert.False(t, worker.IsNegative())
		assert.False(t, company.IsNegative())
	}
}

func TestOpenHold(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(5)
	o, err := repo.CreateOrder(ctx, decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderOpen, entity.OrderAssigned, &workerID))

	require.NoError(t, m.OpenHold(ctx, o.OrderID))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.True(t, got.ChargeRef.Valid)
	require.True(t, got.WorkerEarned.Valid)
	require.True(t, got.CompanyEarned.Valid)
	assert.True(t, got.WorkerEarned.Decimal.Equal(decimal.RequireFromString("65.00")))
	assert.True(t, got.CompanyEarned.Decimal.Equal(decimal.RequireFromString("35.00")))

	// second open on the same order refuses
	err = m.OpenHold(ctx, o.OrderID)
	assert.ErrorIs(t, err, storage.ErrHoldExists)
}

func TestOpenHold_RequiresAssignedState(t *testing.T) {
	repo := storage.NewRepoMemory()
	m := NewIntentManager(repo, newFakeChargeRail())
	ctx := context.Background()

	o, err := repo.CreateOrder(ctx, decimal.NewFromInt(50))
	require.NoError(t, err)

	err = m.OpenHold(ctx, o.OrderID)
	assert.ErrorIs(t, err, ErrHoldNotReady)
}

func TestCapture_CreditsPendingOnce(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(8)
	_, err := repo.CreateContractor(ctx, workerID, "worker8@example.com")
	require.NoError(t, err)

	o := seedCompleteOrder(t, repo, decimal.RequireFromString("100.00"), workerID)
	worker, company := Split(o.TotalPrice)
	require.NoError(t, repo.SetOrderHold(ctx, o.OrderID, "hold-1", worker, company))

	require.NoError(t, m.Capture(ctx, o.OrderID))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.True(t, got.CapturedAt.Valid)

	c, err := repo.GetContractorByWorker(ctx, workerID)
	require.NoError(t, err)
	assert.True(t, c.PendingBalance.Equal(worker))
	assert.True(t, c.TotalEarned.IsZero(), "capture must not touch lifetime earnings")

	// second capture is a no-op
	require.NoError(t, m.Capture(ctx, o.OrderID))
	c, err = repo.GetContractorByWorker(ctx, workerID)
	require.NoError(t, err)
	assert.True(t, c.PendingBalance.Equal(worker))
}

func TestCapture_ConcurrentInvocationsCreditOnce(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(12)
	_, err := repo.CreateContractor(ctx, workerID, "worker12@example.com")
	require.NoError(t, err)

	o := seedCompleteOrder(t, repo, decimal.RequireFromString("100.00"), workerID)
	worker, company := Split(o.TotalPrice)
	require.NoError(t, repo.SetOrderHold(ctx, o.OrderID, "hold-1", worker, company))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Capture(ctx, o.OrderID))
		}()
	}
	wg.Wait()

	c, err := repo.GetContractorByWorker(ctx, workerID)
	require.NoError(t, err)
	assert.True(t, c.PendingBalance.Equal(worker), "pending %s, want %s", c.PendingBalance, worker)
}

func TestCapture_NotCapturableIsRetryableNoop(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	rail.capturable = false
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(4)
	o := seedCompleteOrder(t, repo, decimal.NewFromInt(80), workerID)
	worker, company := Split(o.TotalPrice)
	require.NoError(t, repo.SetOrderHold(ctx, o.OrderID, "hold-1", worker, company))

	require.NoError(t, m.Capture(ctx, o.OrderID))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.False(t, got.CapturedAt.Valid)

	// rail flips to capturable, re-invocation finishes the job
	rail.capturable = true
	require.NoError(t, m.Capture(ctx, o.OrderID))
	got, err = repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.True(t, got.CapturedAt.Valid)
}

func TestCapture_Preconditions(t *testing.T) {
	repo := storage.NewRepoMemory()
	m := NewIntentManager(repo, newFakeChargeRail())
	ctx := context.Background()

	workerID := int64(2)
	o, err := repo.CreateOrder(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderOpen, entity.OrderAssigned, &workerID))

	// not complete
	err = m.Capture(ctx, o.OrderID)
	assert.ErrorIs(t, err, ErrNotCaptureReady)

	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderAssigned, entity.OrderInProgress, nil))
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderInProgress, entity.OrderComplete, nil))

	// not reviewed
	err = m.Capture(ctx, o.OrderID)
	assert.ErrorIs(t, err, ErrNotCaptureReady)

	require.NoError(t, repo.SetOrderAdminReviewed(ctx, o.OrderID, time.Now()))

	// no hold
	err = m.Capture(ctx, o.OrderID)
	assert.ErrorIs(t, err, ErrNotCaptureReady)
}

func TestCapture_TrustsStoredSplit(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(6)
	_, err := repo.CreateContractor(ctx, workerID, "worker6@example.com")
	require.NoError(t, err)

	o := seedCompleteOrder(t, repo, decimal.RequireFromString("100.00"), workerID)

	// a split recorded under an older rate: capture must credit the stored
	// value, never recompute with the current constant
	stored := decimal.RequireFromString("60.00")
	require.NoError(t, repo.SetOrderHold(ctx, o.OrderID, "hold-x", stored, o.TotalPrice.Sub(stored)))

	require.NoError(t, m.Capture(ctx, o.OrderID))

	c, err := repo.GetContractorByWorker(ctx, workerID)
	require.NoError(t, err)
	assert.True(t, c.PendingBalance.Equal(stored))
}

func TestCapture_RailErrorPropagates(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	rail.captureErr = rails.ErrRailRejected
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(3)
	o := seedCompleteOrder(t, repo, decimal.NewFromInt(20), workerID)
	worker, company := Split(o.TotalPrice)
	require.NoError(t, repo.SetOrderHold(ctx, o.OrderID, "hold-1", worker, company))

	err := m.Capture(ctx, o.OrderID)
	assert.True(t, errors.Is(err, rails.ErrRailRejected))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.False(t, got.CapturedAt.Valid, "no partial state on rail failure")
}

func TestRedirectHold_NoPayoutAccountIsNonFatal(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(30)
	o, err := repo.CreateOrder(ctx, decimal.NewFromInt(60))
	require.NoError(t, err)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderOpen, entity.OrderAssigned, &workerID))
	require.NoError(t, m.OpenHold(ctx, o.OrderID))

	// reassign to a worker with no contractor account
	newWorker := int64(31)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderAssigned, entity.OrderReAssigned, nil))
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderReAssigned, entity.OrderAssigned, &newWorker))

	assert.NoError(t, m.RedirectHold(ctx, o.OrderID))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	meta := rail.metadata[got.ChargeRef.String]
	require.NotNil(t, meta)
	assert.Equal(t, "31", meta["worker_id"])
	_, hasDestination := meta["destination"]
	assert.False(t, hasDestination, "hold must stay with the platform")
}

func TestRedirectHold_WithPayoutAccountSetsDestination(t *testing.T) {
	repo := storage.NewRepoMemory()
	rail := newFakeChargeRail()
	m := NewIntentManager(repo, rail)
	ctx := context.Background()

	workerID := int64(40)
	_, err := repo.CreateContractor(ctx, workerID, "worker40@example.com")
	require.NoError(t, err)

	o, err := repo.CreateOrder(ctx, decimal.NewFromInt(60))
	require.NoError(t, err)
	require.NoError(t, repo.TransitionOrder(ctx, o.OrderID, entity.OrderOpen, entity.OrderAssigned, &workerID))
	require.NoError(t, m.OpenHold(ctx, o.OrderID))

	require.NoError(t, m.RedirectHold(ctx, o.OrderID))

	got, err := repo.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	meta := rail.metadata[got.ChargeRef.String]
	require.NotNil(t, meta)
	assert.Equal(t, "worker40@example.com", meta["destination"])
}
