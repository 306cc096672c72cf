package order

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ms-gifting/internal/logger"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"
)

// PaymentLink is what the buyer needs to complete a hosted payment.
type PaymentLink struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
}

// VerifiedPaymentEvent is a gateway event that has passed signature
// verification. The adapter never mutates order state; it only hands this
// to the lifecycle engine.
type VerifiedPaymentEvent struct {
	Type           string
	Succeeded      bool
	OrderID        string
	TransactionRef string
}

// WebhookError carries an HTTP status and a public/internal message split so
// handlers never leak verification details to the caller.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// StripeGateway initiates hosted payments and authenticates webhook events.
type StripeGateway struct {
	webhookSecret string
	logger        *logger.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, log *logger.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// InitiatePayment creates a PaymentIntent for the buyer's total. The order id
// travels in the intent metadata and comes back on the webhook, which is how
// the asynchronous confirmation is re-bound to the order.
func (g *StripeGateway) InitiatePayment(orderID string, buyerTotal int64, currency string) (*PaymentLink, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(buyerTotal),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", orderID)

	intent, err := paymentintent.New(params)
	if err != nil {
		g.logger.Error("PAYMENT", fmt.Sprintf("Failed to create payment intent for order %s: %v", orderID, err))
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	g.logger.Info("PAYMENT", fmt.Sprintf("Created payment intent %s for order %s", intent.ID, orderID))
	return &PaymentLink{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// ParseWebhook authenticates a raw webhook request against the shared signing
// secret and extracts a typed event. A signature mismatch returns
// ErrUnauthorizedWebhook (wrapped in a WebhookError) and must not cause any
// state change. Event types the engine does not care about come back with an
// empty OrderID.
func (g *StripeGateway) ParseWebhook(r *http.Request) (*VerifiedPaymentEvent, error) {
	if g.webhookSecret == "" {
		g.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		g.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), g.webhookSecret, opts)
	if err != nil {
		g.logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   ErrUnauthorizedWebhook,
		}
	}

	g.logger.Info("WEBHOOK", fmt.Sprintf("Verified Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
				OriginalErr:   err,
			}
		}

		orderID, exists := intent.Metadata["order_id"]
		if !exists {
			return nil, &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid payment intent data",
				InternalError: "Payment intent has no order_id in metadata",
			}
		}

		return &VerifiedPaymentEvent{
			Type:           string(event.Type),
			Succeeded:      event.Type == "payment_intent.succeeded",
			OrderID:        orderID,
			TransactionRef: intent.ID,
		}, nil

	default:
		// Verified but irrelevant; the engine treats it as a no-op.
		return &VerifiedPaymentEvent{Type: string(event.Type)}, nil
	}
}
