package order_api

import (
	"fmt"
	"net/http"

	"ms-gifting/internal/order"
)

// StripeWebhook handles payment confirmation events from Stripe. The gateway
// verifies the signature first; only verified events reach the lifecycle
// engine. Replayed deliveries come back as no-ops and still get a 200 so
// Stripe stops retrying.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	ev, err := h.Gateway.ParseWebhook(r)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to verify webhook: %v", err))

		if webhookErr, ok := err.(*order.WebhookError); ok {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	if err := h.OrderService.HandlePaymentEvent(ev); err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process event: %v", err))
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.Logger.Info("API", "StripeWebhook: successfully processed webhook event")
}
