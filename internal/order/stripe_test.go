package order_test

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"ms-gifting/internal/logger"
	"ms-gifting/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// buildSignedRequest produces a Stripe-Signature header value for the
// payload, the same scheme the SDK verifies against.
func buildSignedRequest(payload []byte, secret string) (header string) {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)
}

func TestParseWebhookSucceededEvent(t *testing.T) {
	gateway := order.NewStripeGateway("sk_test_dummy", testWebhookSecret, logger.NewLogger())

	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_abc123",
				"metadata": {"order_id": "order1"}
			}
		}
	}`)

	req := httptest.NewRequest("POST", "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", buildSignedRequest(payload, testWebhookSecret))

	ev, err := gateway.ParseWebhook(req)
	require.NoError(t, err)
	assert.True(t, ev.Succeeded)
	assert.Equal(t, "order1", ev.OrderID)
	assert.Equal(t, "pi_abc123", ev.TransactionRef)
}

func TestParseWebhookFailedEvent(t *testing.T) {
	gateway := order.NewStripeGateway("sk_test_dummy", testWebhookSecret, logger.NewLogger())

	payload := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_abc123",
				"metadata": {"order_id": "order1"}
			}
		}
	}`)

	req := httptest.NewRequest("POST", "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", buildSignedRequest(payload, testWebhookSecret))

	ev, err := gateway.ParseWebhook(req)
	require.NoError(t, err)
	assert.False(t, ev.Succeeded)
	assert.Equal(t, "order1", ev.OrderID)
}

func TestParseWebhookBadSignature(t *testing.T) {
	gateway := order.NewStripeGateway("sk_test_dummy", testWebhookSecret, logger.NewLogger())

	payload := []byte(`{"id": "evt_3", "type": "payment_intent.succeeded"}`)
	req := httptest.NewRequest("POST", "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", buildSignedRequest(payload, "whsec_wrong_secret"))

	_, err := gateway.ParseWebhook(req)
	assert.ErrorIs(t, err, order.ErrUnauthorizedWebhook)

	var webhookErr *order.WebhookError
	require.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, 400, webhookErr.StatusCode)
	assert.NotContains(t, webhookErr.PublicError, testWebhookSecret)
}

func TestParseWebhookUnboundEventType(t *testing.T) {
	gateway := order.NewStripeGateway("sk_test_dummy", testWebhookSecret, logger.NewLogger())

	payload := []byte(`{"id": "evt_4", "type": "charge.refunded", "data": {"object": {}}}`)
	req := httptest.NewRequest("POST", "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", buildSignedRequest(payload, testWebhookSecret))

	ev, err := gateway.ParseWebhook(req)
	require.NoError(t, err)
	assert.Empty(t, ev.OrderID, "irrelevant event types carry no order binding")
}

func TestInitiatePayment(t *testing.T) {
	// The Stripe SDK cannot be pointed at a fake backend without live
	// credentials, so intent creation is covered by the service tests
	// through the PaymentGateway interface.
	t.Skip("requires a Stripe test key")
}
