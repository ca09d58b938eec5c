package handlers

import (
	"errors"
	"io"
	"net/http"

	"simplicity-itsm/core/billing"
	"simplicity-itsm/core/utils"
)

const maxWebhookBody = 1 << 20

type BillingHandler struct {
	svc    *billing.Service
	logger *utils.Logger
}

func NewBillingHandler(svc *billing.Service, logger *utils.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger}
}

// Webhook receives subscription lifecycle events from the payment provider.
// The signature gate runs before any parsing.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	header := r.Header.Get("Billing-Signature")
	if err := billing.VerifySignature(payload, header, h.svc.Secret(), h.svc.Tolerance(), utils.NowUTC()); err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.svc.ProcessEvent(r.Context(), payload); err != nil {
		if h.logger != nil {
			h.logger.Errorf("billing webhook failed: %v", err)
		}
		writeError(w, http.StatusBadRequest, "event rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
