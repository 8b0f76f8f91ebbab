package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/skillmarket/backend/internal/app/payout"
	"github.com/skillmarket/backend/internal/app/storage"
)

// chargeRailWebhook receives signed payout/transfer lifecycle events from
// the card processor. The signature is verified against the shared secret
// before anything is parsed; unverifiable or malformed payloads are rejected
// and logged, never silently dropped, since these are financial events.
func (bh *BaseHandler) chargeRailWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Invalid body", http.StatusBadRequest)
			log.Warn().Err(err).Msg("webhook body read failed")
			return
		}

		if !verifySignature(body, r.Header.Get(signatureHeader), bh.webhookSecret) {
			http.Error(w, invalidSignature, http.StatusUnauthorized)
			log.Warn().Str("remote", r.RemoteAddr).Msg("webhook rejected: bad signature")
			return
		}

		var ev payout.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			log.Warn().Err(err).Msg("webhook rejected: malformed payload")
			return
		}

		if err := bh.orchestrator.HandleEvent(r.Context(), ev); err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, payout.ErrReconciliationConflict):
				// acknowledged so the rail stops redelivering; the conflict
				// is already on the alert log
				w.WriteHeader(http.StatusOK)
			default:
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
