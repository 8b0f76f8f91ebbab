package entity

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderOpen       OrderState = "OPEN"
	OrderAssigned   OrderState = "ASSIGNED"
	OrderInProgress OrderState = "IN_PROGRESS"
	OrderDelayed    OrderState = "DELAYED"
	OrderDisputed   OrderState = "DISPUTED"
	OrderReAssigned OrderState = "RE_ASSIGNED"
	OrderComplete   OrderState = "COMPLETE"
)

// PayoutStatus is the lifecycle state of a single money-movement attempt.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutSuccess    PayoutStatus = "SUCCESS"
	PayoutFailed     PayoutStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutSuccess || s == PayoutFailed
}

type Order struct {
	OrderID         int64               `db:"order_id"`
	TotalPrice      decimal.Decimal     `db:"total_price"`
	State           OrderState          `db:"state"`
	WorkerID        sql.NullInt64       `db:"worker_id"`
	ChargeRef       sql.NullString      `db:"charge_ref"`
	WorkerEarned    decimal.NullDecimal `db:"worker_earned"`
	CompanyEarned   decimal.NullDecimal `db:"company_earned"`
	AdminReviewedAt sql.NullTime        `db:"admin_reviewed_at"`
	CapturedAt      sql.NullTime        `db:"captured_at"`
	MaturedAt       sql.NullTime        `db:"matured_at"`
	CreatedAt       time.Time           `db:"created_at"`
}

// Captured reports whether the held charge has been finalized.
func (o *Order) Captured() bool {
	return o.CapturedAt.Valid
}

// The sql.Null* columns marshal as plain nullable JSON values, not as the
// driver's {Value, Valid} structs.

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func nullDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	return &v.Decimal
}

func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OrderID         int64            `json:"order_id"`
		TotalPrice      decimal.Decimal  `json:"total_price"`
		State           OrderState       `json:"state"`
		WorkerID        *int64           `json:"worker_id"`
		ChargeRef       *string          `json:"charge_ref"`
		WorkerEarned    *decimal.Decimal `json:"worker_earned"`
		CompanyEarned   *decimal.Decimal `json:"company_earned"`
		AdminReviewedAt *time.Time       `json:"admin_reviewed_at"`
		CapturedAt      *time.Time       `json:"captured_at"`
		MaturedAt       *time.Time       `json:"matured_at"`
		CreatedAt       time.Time        `json:"created_at"`
	}{
		OrderID:         o.OrderID,
		TotalPrice:      o.TotalPrice,
		State:           o.State,
		WorkerID:        nullInt(o.WorkerID),
		ChargeRef:       nullString(o.ChargeRef),
		WorkerEarned:    nullDecimal(o.WorkerEarned),
		CompanyEarned:   nullDecimal(o.CompanyEarned),
		AdminReviewedAt: nullTime(o.AdminReviewedAt),
		CapturedAt:      nullTime(o.CapturedAt),
		MaturedAt:       nullTime(o.MaturedAt),
		CreatedAt:       o.CreatedAt,
	})
}

// Contractor is the payout-receiving account of a worker who opted into
// being paid. Balances are mutated only through Repository operations.
type Contractor struct {
	ContractorID       int64           `db:"contractor_id"`
	WorkerID           int64           `db:"worker_id"`
	AvailableBalance   decimal.Decimal `db:"available_balance"`
	PendingBalance     decimal.Decimal `db:"pending_balance"`
	TotalEarned        decimal.Decimal `db:"total_earned"`
	LastWithdrawalAt   sql.NullTime    `db:"last_withdrawal_at"`
	PayoutAccountReady bool            `db:"payout_account_ready"`
	PayoutRecipient    string          `db:"payout_recipient"`
	CreatedAt          time.Time       `db:"created_at"`
}

func (c Contractor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ContractorID       int64           `json:"contractor_id"`
		WorkerID           int64           `json:"worker_id"`
		AvailableBalance   decimal.Decimal `json:"available_balance"`
		PendingBalance     decimal.Decimal `json:"pending_balance"`
		TotalEarned        decimal.Decimal `json:"total_earned"`
		LastWithdrawalAt   *time.Time      `json:"last_withdrawal_at"`
		PayoutAccountReady bool            `json:"payout_account_ready"`
		PayoutRecipient    string          `json:"payout_recipient"`
		CreatedAt          time.Time       `json:"created_at"`
	}{
		ContractorID:       c.ContractorID,
		WorkerID:           c.WorkerID,
		AvailableBalance:   c.AvailableBalance,
		PendingBalance:     c.PendingBalance,
		TotalEarned:        c.TotalEarned,
		LastWithdrawalAt:   nullTime(c.LastWithdrawalAt),
		PayoutAccountReady: c.PayoutAccountReady,
		PayoutRecipient:    c.PayoutRecipient,
		CreatedAt:          c.CreatedAt,
	})
}

type Payout struct {
	PayoutID        int64           `db:"payout_id"`
	ContractorID    int64           `db:"contractor_id"`
	Amount          decimal.Decimal `db:"amount"`
	Status          PayoutStatus    `db:"status"`
	ExternalBatchID sql.NullString  `db:"external_batch_id"`
	ExternalItemID  sql.NullString  `db:"external_item_id"`
	FailureReason   sql.NullString  `db:"failure_reason"`
	RawResponse     []byte          `db:"raw_response"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// The raw processor response stays out of API payloads.
func (p Payout) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PayoutID        int64           `json:"payout_id"`
		ContractorID    int64           `json:"contractor_id"`
		Amount          decimal.Decimal `json:"amount"`
		Status          PayoutStatus    `json:"status"`
		ExternalBatchID *string         `json:"external_batch_id"`
		ExternalItemID  *string         `json:"external_item_id"`
		FailureReason   *string         `json:"failure_reason"`
		CreatedAt       time.Time       `json:"created_at"`
		UpdatedAt       time.Time       `json:"updated_at"`
	}{
		PayoutID:        p.PayoutID,
		ContractorID:    p.ContractorID,
		Amount:          p.Amount,
		Status:          p.Status,
		ExternalBatchID: nullString(p.ExternalBatchID),
		ExternalItemID:  nullString(p.ExternalItemID),
		FailureReason:   nullString(p.FailureReason),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	})
}
