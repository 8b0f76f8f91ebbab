package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/order"
	"github.com/skillmarket/backend/internal/app/payment"
	"github.com/skillmarket/backend/internal/app/payout"
	"github.com/skillmarket/backend/internal/app/rails"
	"github.com/skillmarket/backend/internal/app/storage"
)

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, storage.ErrWithdrawalCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrHoldExists):
		return http.StatusConflict
	case errors.Is(err, payout.ErrAccountNotReady):
		return http.StatusConflict
	case errors.Is(err, payout.ErrInvalidAmount), errors.Is(err, storage.ErrSplitsOrderShare):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrNotCaptureReady), errors.Is(err, payment.ErrHoldNotReady):
		return http.StatusConflict
	case errors.Is(err, rails.ErrRailUnavailable), errors.Is(err, rails.ErrRailRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFromErr(err))
	log.Error().Err(err).Msg("request failed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (bh *BaseHandler) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := bh.repo.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (bh *BaseHandler) createOrder() http.HandlerFunc {
	type request struct {
		TotalPrice decimal.Decimal `json:"total_price"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if !req.TotalPrice.IsPositive() {
			http.Error(w, "total_price must be positive", http.StatusUnprocessableEntity)
			return
		}

		o, err := bh.repo.CreateOrder(r.Context(), req.TotalPrice)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func (bh *BaseHandler) getOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "orderID")
		if err != nil {
			http.Error(w, "Invalid order id", http.StatusBadRequest)
			return
		}

		o, err := bh.repo.GetOrder(r.Context(), orderID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

// assignOrder sets the worker and fires the assign transition; opening the
// hold is an explicit follow-up call, visible here rather than hidden in a
// persistence hook. On a re-entry from RE_ASSIGNED the existing hold is
// redirected instead.
func (bh *BaseHandler) assignOrder() http.HandlerFunc {
	type request struct {
		WorkerID int64 `json:"worker_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "orderID")
		if err != nil {
			http.Error(w, "Invalid order id", http.StatusBadRequest)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		o, err := bh.machine.Fire(r.Context(), orderID, order.EventAssign, &req.WorkerID)
		if errors.Is(err, order.ErrInvalidTransition) {
			// a hold-open failure leaves the order assigned without a hold;
			// the same assign request may come back to finish the money path
			if cur, gerr := bh.repo.GetOrder(r.Context(), orderID); gerr == nil &&
				cur.State == entity.OrderAssigned &&
				cur.WorkerID.Valid && cur.WorkerID.Int64 == req.WorkerID &&
				!cur.ChargeRef.Valid {
				o, err = cur, nil
			}
		}
		if err != nil {
			writeErr(w, err)
			return
		}

		if o.ChargeRef.Valid {
			if err := bh.intents.RedirectHold(r.Context(), orderID); err != nil {
				writeErr(w, err)
				return
			}
		} else if err := bh.intents.OpenHold(r.Context(), orderID); err != nil {
			// the assignment stands; the hold is retryable
			writeErr(w, err)
			return
		}

		o, err = bh.repo.GetOrder(r.Context(), orderID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (bh *BaseHandler) fireOrderEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "orderID")
		if err != nil {
			http.Error(w, "Invalid order id", http.StatusBadRequest)
			return
		}

		o, err := bh.machine.Fire(r.Context(), orderID, order.Event(chi.URLParam(r, "event")), nil)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (bh *BaseHandler) getBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractorID, err := pathID(r, "contractorID")
		if err != nil {
			http.Error(w, "Invalid contractor id", http.StatusBadRequest)
			return
		}

		c, err := bh.ledger.Balance(r.Context(), contractorID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (bh *BaseHandler) listPayouts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractorID, err := pathID(r, "contractorID")
		if err != nil {
			http.Error(w, "Invalid contractor id", http.StatusBadRequest)
			return
		}

		payouts, err := bh.ledger.Payouts(r.Context(), contractorID)
		if err != nil {
			writeErr(w, err)
			return
		}

		if status := r.URL.Query().Get("status"); status != "" {
			filtered := payouts[:0]
			for _, p := range payouts {
				if string(p.Status) == status {
					filtered = append(filtered, p)
				}
			}
			payouts = filtered
		}
		writeJSON(w, http.StatusOK, payouts)
	}
}

func (bh *BaseHandler) requestPayout() http.HandlerFunc {
	type request struct {
		Amount decimal.Decimal `json:"amount"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		contractorID, err := pathID(r, "contractorID")
		if err != nil {
			http.Error(w, "Invalid contractor id", http.StatusBadRequest)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		p, err := bh.orchestrator.Initiate(r.Context(), contractorID, req.Amount)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, p)
	}
}

// createContractor registers a worker's payout account and immediately runs
// the retroactive settlement reconciler over their already-captured orders.
func (bh *BaseHandler) createContractor() http.HandlerFunc {
	type request struct {
		WorkerID  int64  `json:"worker_id"`
		Recipient string `json:"payout_recipient"`
	}
	type response struct {
		ContractorID       int64 `json:"contractor_id"`
		RetroactiveCredits int   `json:"retroactive_credits"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.WorkerID == 0 || req.Recipient == "" {
			http.Error(w, "worker_id and payout_recipient are required", http.StatusUnprocessableEntity)
			return
		}

		c, err := bh.repo.CreateContractor(r.Context(), req.WorkerID, req.Recipient)
		if err != nil {
			writeErr(w, err)
			return
		}

		credited, err := bh.reconciler.Run(r.Context(), c.ContractorID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, response{ContractorID: c.ContractorID, RetroactiveCredits: credited})
	}
}

// matureBalance is the manual admin form of maturation: a concrete amount,
// or the full pending bucket when the body carries none.
func (bh *BaseHandler) matureBalance() http.HandlerFunc {
	type request struct {
		Amount decimal.NullDecimal `json:"amount"`
	}
	type response struct {
		Moved decimal.Decimal `json:"moved"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		contractorID, err := pathID(r, "contractorID")
		if err != nil {
			http.Error(w, "Invalid contractor id", http.StatusBadRequest)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if req.Amount.Valid {
			if err := bh.ledger.MatureToAvailable(r.Context(), contractorID, req.Amount.Decimal); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, response{Moved: req.Amount.Decimal})
			return
		}

		moved, err := bh.ledger.MatureAllPending(r.Context(), contractorID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response{Moved: moved})
	}
}

// reviewOrder records the admin review and immediately attempts capture.
func (bh *BaseHandler) reviewOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "orderID")
		if err != nil {
			http.Error(w, "Invalid order id", http.StatusBadRequest)
			return
		}

		if err := bh.repo.SetOrderAdminReviewed(r.Context(), orderID, time.Now().Truncate(time.Second)); err != nil {
			writeErr(w, err)
			return
		}
		if err := bh.intents.Capture(r.Context(), orderID); err != nil {
			writeErr(w, err)
			return
		}

		o, err := bh.repo.GetOrder(r.Context(), orderID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}
