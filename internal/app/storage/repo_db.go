package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
)

var schema = `
CREATE TABLE IF NOT EXISTS orders(
	order_id			BIGSERIAL PRIMARY KEY,
	total_price			NUMERIC(15,2) NOT NULL,
	state				VARCHAR(15) NOT NULL,
	worker_id			BIGINT,
	charge_ref			TEXT,
	worker_earned		NUMERIC(15,2),
	company_earned		NUMERIC(15,2),
	admin_reviewed_at	TIMESTAMP WITH TIME ZONE,
	captured_at			TIMESTAMP WITH TIME ZONE,
	matured_at			TIMESTAMP WITH TIME ZONE,
	created_at			TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS contractors(
	contractor_id			BIGSERIAL PRIMARY KEY,
	worker_id				BIGINT NOT NULL UNIQUE,
	available_balance		NUMERIC(15,2) NOT NULL DEFAULT 0.00,
	pending_balance			NUMERIC(15,2) NOT NULL DEFAULT 0.00,
	total_earned			NUMERIC(15,2) NOT NULL DEFAULT 0.00,
	last_withdrawal_at		TIMESTAMP WITH TIME ZONE,
	payout_account_ready	BOOLEAN NOT NULL DEFAULT FALSE,
	payout_recipient		TEXT NOT NULL,
	created_at				TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS payouts(
	payout_id			BIGSERIAL PRIMARY KEY,
	contractor_id		BIGINT NOT NULL REFERENCES contractors(contractor_id),
	amount				NUMERIC(15,2) NOT NULL,
	status				VARCHAR(12) NOT NULL,
	external_batch_id	TEXT,
	external_item_id	TEXT,
	failure_reason		TEXT,
	raw_response		BYTEA,
	created_at			TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at			TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS settlement_credits(
	contractor_id	BIGINT NOT NULL,
	order_id		BIGINT NOT NULL,
	amount			NUMERIC(15,2) NOT NULL,
	credited_at		TIMESTAMP WITH TIME ZONE NOT NULL,
	PRIMARY KEY (contractor_id, order_id)
);`

const orderColumns = `order_id, total_price, state, worker_id, charge_ref, worker_earned, company_earned, admin_reviewed_at, captured_at, matured_at, created_at`
const contractorColumns = `contractor_id, worker_id, available_balance, pending_balance, total_earned, last_withdrawal_at, payout_account_ready, payout_recipient, created_at`
const payoutColumns = `payout_id, contractor_id, amount, status, external_batch_id, external_item_id, failure_reason, raw_response, created_at, updated_at`

type RepoDB struct {
	db *sqlx.DB
}

func NewRepoDB(databaseURI string) (*RepoDB, error) {
	db, err := sqlx.Connect("pgx", databaseURI)
	if err != nil {
		return nil, err
	}

	db.MustExec(schema)

	return &RepoDB{db: db}, nil
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).Msg("tx rollback failed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *RepoDB) CreateOrder(ctx context.Context, totalPrice decimal.Decimal) (entity.Order, error) {
	var o entity.Order
	query := `INSERT INTO orders (total_price, state, created_at) VALUES ($1, $2, $3) RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &o, query, totalPrice, entity.OrderOpen, time.Now().Truncate(time.Second))
	return o, err
}

func (r *RepoDB) GetOrder(ctx context.Context, orderID int64) (entity.Order, error) {
	var o entity.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = ($1)`
	err := r.db.GetContext(ctx, &o, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (r *RepoDB) TransitionOrder(ctx context.Context, orderID int64, from, to entity.OrderState, workerID *int64) error {
	query := `UPDATE orders SET state = ($1), worker_id = COALESCE($2, worker_id) WHERE order_id = ($3) AND state = ($4)`
	res, err := r.db.ExecContext(ctx, query, to, workerID, orderID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *RepoDB) SetOrderHold(ctx context.Context, orderID int64, chargeRef string, workerEarned, companyEarned decimal.Decimal) error {
	query := `UPDATE orders SET charge_ref = ($1), worker_earned = ($2), company_earned = ($3) WHERE order_id = ($4) AND charge_ref IS NULL`
	res, err := r.db.ExecContext(ctx, query, chargeRef, workerEarned, companyEarned, orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrHoldExists
	}
	return nil
}

func (r *RepoDB) SetOrderAdminReviewed(ctx context.Context, orderID int64, at time.Time) error {
	query := `UPDATE orders SET admin_reviewed_at = ($1) WHERE order_id = ($2) AND admin_reviewed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, at, orderID)
	return err
}

func (r *RepoDB) CaptureOrderAndCredit(ctx context.Context, orderID int64, workerEarned decimal.Decimal, at time.Time) (bool, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, false, err
	}
	defer rollback(tx)

	var o entity.Order
	queryLockOrder := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &o, queryLockOrder, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, ErrNotFound
		}
		return false, false, err
	}
	if o.CapturedAt.Valid {
		return false, false, nil
	}

	queryCapture := `UPDATE orders SET captured_at = ($1) WHERE order_id = ($2)`
	if _, err := tx.ExecContext(ctx, queryCapture, at, orderID); err != nil {
		return false, false, err
	}

	credited := false
	if o.WorkerID.Valid {
		var c entity.Contractor
		queryLockContractor := `SELECT ` + contractorColumns + ` FROM contractors WHERE worker_id = ($1) FOR UPDATE`
		err := tx.GetContext(ctx, &c, queryLockContractor, o.WorkerID.Int64)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, false, err
		}
		if err == nil {
			queryMark := `INSERT INTO settlement_credits (contractor_id, order_id, amount, credited_at) VALUES ($1, $2, $3, $4)`
			if _, err := tx.ExecContext(ctx, queryMark, c.ContractorID, orderID, workerEarned, at); err != nil {
				return false, false, err
			}
			queryCredit := `UPDATE contractors SET pending_balance = pending_balance + ($1) WHERE contractor_id = ($2)`
			if _, err := tx.ExecContext(ctx, queryCredit, workerEarned, c.ContractorID); err != nil {
				return false, false, err
			}
			credited = true
		}
	}

	if err := tx.Commit(); err != nil {
		return false, false, err
	}
	return true, credited, nil
}

func (r *RepoDB) ListMaturableOrders(ctx context.Context, cutoff time.Time) ([]entity.Order, error) {
	var orders []entity.Order
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE captured_at IS NOT NULL AND captured_at <= ($1) AND matured_at IS NULL
		AND EXISTS (SELECT 1 FROM settlement_credits sc JOIN contractors c ON c.contractor_id = sc.contractor_id
			WHERE sc.order_id = orders.order_id AND c.worker_id = orders.worker_id)
		ORDER BY captured_at ASC`
	err := r.db.SelectContext(ctx, &orders, query, cutoff)
	return orders, err
}

func (r *RepoDB) MatureOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer rollback(tx)

	var o entity.Order
	queryLockOrder := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &o, queryLockOrder, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	if !o.CapturedAt.Valid || o.MaturedAt.Valid || !o.WorkerID.Valid || !o.WorkerEarned.Valid {
		return decimal.Zero, nil
	}

	var c entity.Contractor
	queryLockContractor := `SELECT ` + contractorColumns + ` FROM contractors WHERE worker_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &c, queryLockContractor, o.WorkerID.Int64); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	// only credited orders mature; an uncredited one waits for the reconciler
	var credited bool
	queryMark := `SELECT EXISTS (SELECT 1 FROM settlement_credits WHERE contractor_id = ($1) AND order_id = ($2))`
	if err := tx.GetContext(ctx, &credited, queryMark, c.ContractorID, orderID); err != nil {
		return decimal.Zero, err
	}
	if !credited {
		return decimal.Zero, nil
	}

	amount := o.WorkerEarned.Decimal
	queryMove := `UPDATE contractors SET pending_balance = pending_balance - ($1), available_balance = available_balance + ($1), total_earned = total_earned + ($1)
		WHERE contractor_id = ($2) RETURNING pending_balance`
	var newPending decimal.Decimal
	if err := tx.QueryRowContext(ctx, queryMove, amount, c.ContractorID).Scan(&newPending); err != nil {
		return decimal.Zero, err
	}
	if newPending.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}

	queryStamp := `UPDATE orders SET matured_at = ($1) WHERE order_id = ($2)`
	if _, err := tx.ExecContext(ctx, queryStamp, time.Now().Truncate(time.Second), orderID); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (r *RepoDB) ListCapturedOrdersBefore(ctx context.Context, workerID int64, before time.Time) ([]entity.Order, error) {
	var orders []entity.Order
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE worker_id = ($1) AND captured_at IS NOT NULL AND captured_at < ($2) ORDER BY captured_at ASC`
	err := r.db.SelectContext(ctx, &orders, query, workerID, before)
	return orders, err
}

func (r *RepoDB) CreateContractor(ctx context.Context, workerID int64, recipient string) (entity.Contractor, error) {
	var c entity.Contractor
	query := `INSERT INTO contractors (worker_id, payout_recipient, created_at) VALUES ($1, $2, $3) RETURNING ` + contractorColumns
	err := r.db.GetContext(ctx, &c, query, workerID, recipient, time.Now().Truncate(time.Second))
	if isUniqueViolation(err) {
		return r.GetContractorByWorker(ctx, workerID)
	}
	return c, err
}

func (r *RepoDB) GetContractor(ctx context.Context, contractorID int64) (entity.Contractor, error) {
	var c entity.Contractor
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE contractor_id = ($1)`
	err := r.db.GetContext(ctx, &c, query, contractorID)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r *RepoDB) GetContractorByWorker(ctx context.Context, workerID int64) (entity.Contractor, error) {
	var c entity.Contractor
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE worker_id = ($1)`
	err := r.db.GetContext(ctx, &c, query, workerID)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r *RepoDB) SetPayoutAccountReady(ctx context.Context, contractorID int64, ready bool) error {
	query := `UPDATE contractors SET payout_account_ready = ($1) WHERE contractor_id = ($2)`
	_, err := r.db.ExecContext(ctx, query, ready, contractorID)
	return err
}

func (r *RepoDB) CreditPending(ctx context.Context, contractorID int64, amount decimal.Decimal) error {
	query := `UPDATE contractors SET pending_balance = pending_balance + ($1) WHERE contractor_id = ($2)`
	res, err := r.db.ExecContext(ctx, query, amount, contractorID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// orderShare is an unmatured settlement credit and the order it belongs to,
// as seen by the maturation queries.
type orderShare struct {
	OrderID int64           `db:"order_id"`
	Amount  decimal.Decimal `db:"amount"`
}

// lockUnmaturedShares loads the contractor's credited, unmatured order shares
// oldest first, locking the order rows for the rest of the transaction.
func lockUnmaturedShares(ctx context.Context, tx *sqlx.Tx, contractorID int64) ([]orderShare, error) {
	var shares []orderShare
	query := `SELECT o.order_id AS order_id, sc.amount AS amount
		FROM settlement_credits sc JOIN orders o ON o.order_id = sc.order_id
		WHERE sc.contractor_id = ($1) AND o.matured_at IS NULL
		ORDER BY o.captured_at ASC
		FOR UPDATE OF o`
	err := tx.SelectContext(ctx, &shares, query, contractorID)
	return shares, err
}

func stampOrderMatured(ctx context.Context, tx *sqlx.Tx, orderID int64, at time.Time) error {
	query := `UPDATE orders SET matured_at = ($1) WHERE order_id = ($2)`
	_, err := tx.ExecContext(ctx, query, at, orderID)
	return err
}

func (r *RepoDB) MatureToAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	var c entity.Contractor
	queryLock := `SELECT ` + contractorColumns + ` FROM contractors WHERE contractor_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &c, queryLock, contractorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if c.PendingBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	shares, err := lockUnmaturedShares(ctx, tx, contractorID)
	if err != nil {
		return err
	}

	// consume whole shares oldest first; the leftover must be coverable by
	// pending credits not backed by any order, or the order-level and
	// bucket-level books would diverge
	now := time.Now().Truncate(time.Second)
	backed := decimal.Zero
	remaining := amount
	for _, s := range shares {
		backed = backed.Add(s.Amount)
		if remaining.LessThan(s.Amount) {
			continue
		}
		if err := stampOrderMatured(ctx, tx, s.OrderID, now); err != nil {
			return err
		}
		remaining = remaining.Sub(s.Amount)
	}
	if remaining.GreaterThan(c.PendingBalance.Sub(backed)) {
		return ErrSplitsOrderShare
	}

	queryMove := `UPDATE contractors SET pending_balance = pending_balance - ($1), available_balance = available_balance + ($1), total_earned = total_earned + ($1) WHERE contractor_id = ($2)`
	if _, err := tx.ExecContext(ctx, queryMove, amount, contractorID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *RepoDB) MatureAllPending(ctx context.Context, contractorID int64) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer rollback(tx)

	var c entity.Contractor
	queryLock := `SELECT ` + contractorColumns + ` FROM contractors WHERE contractor_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &c, queryLock, contractorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	if c.PendingBalance.IsZero() {
		return decimal.Zero, nil
	}

	shares, err := lockUnmaturedShares(ctx, tx, contractorID)
	if err != nil {
		return decimal.Zero, err
	}
	now := time.Now().Truncate(time.Second)
	for _, s := range shares {
		if err := stampOrderMatured(ctx, tx, s.OrderID, now); err != nil {
			return decimal.Zero, err
		}
	}

	queryMove := `UPDATE contractors SET pending_balance = 0, available_balance = available_balance + ($1), total_earned = total_earned + ($1) WHERE contractor_id = ($2)`
	if _, err := tx.ExecContext(ctx, queryMove, c.PendingBalance, contractorID); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return c.PendingBalance, nil
}

func (r *RepoDB) DebitAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal, now time.Time, cooldown time.Duration) (sql.NullTime, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return sql.NullTime{}, err
	}
	defer rollback(tx)

	var c entity.Contractor
	queryLock := `SELECT ` + contractorColumns + ` FROM contractors WHERE contractor_id = ($1) FOR UPDATE`
	if err := tx.GetContext(ctx, &c, queryLock, contractorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.NullTime{}, ErrNotFound
		}
		return sql.NullTime{}, err
	}
	if c.LastWithdrawalAt.Valid && now.Sub(c.LastWithdrawalAt.Time) < cooldown {
		return sql.NullTime{}, ErrWithdrawalCooldown
	}

	queryDebit := `UPDATE contractors SET available_balance = available_balance - ($1), last_withdrawal_at = ($2) WHERE contractor_id = ($3) RETURNING available_balance`
	var newAvailable decimal.Decimal
	if err := tx.QueryRowContext(ctx, queryDebit, amount, now, contractorID).Scan(&newAvailable); err != nil {
		return sql.NullTime{}, err
	}
	if newAvailable.IsNegative() {
		return sql.NullTime{}, ErrInsufficientBalance
	}

	if err := tx.Commit(); err != nil {
		return sql.NullTime{}, err
	}
	return c.LastWithdrawalAt, nil
}

func (r *RepoDB) RestoreAvailable(ctx context.Context, contractorID int64, amount decimal.Decimal, prevWithdrawal sql.NullTime) error {
	query := `UPDATE contractors SET available_balance = available_balance + ($1), last_withdrawal_at = ($2) WHERE contractor_id = ($3)`
	_, err := r.db.ExecContext(ctx, query, amount, prevWithdrawal, contractorID)
	return err
}

func (r *RepoDB) CreditRetroactive(ctx context.Context, contractorID, orderID int64, amount decimal.Decimal) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	queryMark := `INSERT INTO settlement_credits (contractor_id, order_id, amount, credited_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, queryMark, contractorID, orderID, amount, time.Now().Truncate(time.Second)); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyCredited
		}
		return err
	}

	queryCredit := `UPDATE contractors SET pending_balance = pending_balance + ($1) WHERE contractor_id = ($2)`
	if _, err := tx.ExecContext(ctx, queryCredit, amount, contractorID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *RepoDB) CreatePayout(ctx context.Context, contractorID int64, amount decimal.Decimal) (entity.Payout, error) {
	var p entity.Payout
	now := time.Now().Truncate(time.Second)
	query := `INSERT INTO payouts (contractor_id, amount, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) RETURNING ` + payoutColumns
	err := r.db.GetContext(ctx, &p, query, contractorID, amount, entity.PayoutPending, now)
	return p, err
}

func (r *RepoDB) GetPayout(ctx context.Context, payoutID int64) (entity.Payout, error) {
	var p entity.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE payout_id = ($1)`
	err := r.db.GetContext(ctx, &p, query, payoutID)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r *RepoDB) GetPayoutByExternalItem(ctx context.Context, itemID string) (entity.Payout, error) {
	var p entity.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE external_item_id = ($1)`
	err := r.db.GetContext(ctx, &p, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r *RepoDB) ListPayoutsByStatus(ctx context.Context, statuses ...entity.PayoutStatus) ([]entity.Payout, error) {
	query, args, err := sqlx.In(`SELECT `+payoutColumns+` FROM payouts WHERE status IN (?) ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, err
	}

	var payouts []entity.Payout
	err = r.db.SelectContext(ctx, &payouts, r.db.Rebind(query), args...)
	return payouts, err
}

func (r *RepoDB) ListPayoutsByContractor(ctx context.Context, contractorID int64) ([]entity.Payout, error) {
	var payouts []entity.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE contractor_id = ($1) ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &payouts, query, contractorID)
	return payouts, err
}

func (r *RepoDB) MarkPayoutProcessing(ctx context.Context, payoutID int64, batchID, itemID string, raw []byte) error {
	query := `UPDATE payouts SET status = ($1), external_batch_id = ($2), external_item_id = ($3), raw_response = ($4), updated_at = ($5)
		WHERE payout_id = ($6) AND status = ($7)`
	res, err := r.db.ExecContext(ctx, query, entity.PayoutProcessing, batchID, itemID, raw, time.Now().Truncate(time.Second), payoutID, entity.PayoutPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *RepoDB) SetPayoutStatus(ctx context.Context, payoutID int64, from, to entity.PayoutStatus, failureReason string, raw []byte) error {
	query := `UPDATE payouts SET status = ($1), failure_reason = NULLIF($2, ''), raw_response = COALESCE($3, raw_response), updated_at = ($4)
		WHERE payout_id = ($5) AND status = ($6)`
	res, err := r.db.ExecContext(ctx, query, to, failureReason, raw, time.Now().Truncate(time.Second), payoutID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *RepoDB) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *RepoDB) Close() {
	r.db.Close()
}
