package models

import "time"

// Lifecycle event types streamed to Kafka. Notification delivery and payout
// disbursement are consumers of these events, never inline calls inside the
// transition code.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCollected = "order.collected"
	EventOrderCancelled = "order.cancelled"
	EventPayoutSent     = "payout.sent"
)

type OrderEvent struct {
	Type        string      `json:"type"`
	OrderID     string      `json:"order_id"`
	ShopID      string      `json:"shop_id"`
	BuyerID     string      `json:"buyer_id"`
	Status      OrderStatus `json:"status"`
	PickupCode  string      `json:"pickup_code,omitempty"`
	BuyerTotal  int64       `json:"buyer_total"`
	ShopNet     int64       `json:"shop_net"`
	Currency    string      `json:"currency"`
	OccurredAt  time.Time   `json:"occurred_at"`
	TransferRef string      `json:"transfer_ref,omitempty"`
}
