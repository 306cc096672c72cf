package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusCollected      OrderStatus = "collected"
	StatusCancelled      OrderStatus = "cancelled"
)

// Order is the single source of truth for the lifecycle state machine.
// All money fields are integer minor units (cents); fee terms are frozen
// at creation time and never recomputed from the shop's current rate.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID         string      `bun:"order_id,pk" json:"order_id"`
	ShopID          string      `bun:"shop_id" json:"shop_id"`
	BuyerID         string      `bun:"buyer_id" json:"buyer_id"`
	Subtotal        int64       `bun:"subtotal" json:"subtotal"`
	Commission      int64       `bun:"commission" json:"commission"`
	ProcessingFee   int64       `bun:"processing_fee" json:"processing_fee"`
	BuyerTotal      int64       `bun:"buyer_total" json:"buyer_total"`
	ShopNet         int64       `bun:"shop_net" json:"shop_net"`
	Currency        string      `bun:"currency" json:"currency"`
	PickupCode      string      `bun:"pickup_code" json:"pickup_code"`
	Status          OrderStatus `bun:"status" json:"status"`
	PayoutSent      bool        `bun:"payout_sent" json:"payout_sent"`
	PaymentIntentID string      `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	TransactionRef  string      `bun:"transaction_ref,nullzero" json:"transaction_ref,omitempty"`
	CreatedAt       time.Time   `bun:"created_at" json:"created_at"`
	PaidAt          *time.Time  `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	CollectedAt     *time.Time  `bun:"collected_at,nullzero" json:"collected_at,omitempty"`
}

// OrderLineItem captures the unit price at purchase time, so later catalog
// price changes never alter historical orders.
type OrderLineItem struct {
	bun.BaseModel `bun:"table:order_line_items"`

	LineItemID string `bun:"line_item_id,pk" json:"line_item_id"`
	OrderID    string `bun:"order_id" json:"order_id"`
	ProductID  string `bun:"product_id" json:"product_id"`
	Quantity   int    `bun:"quantity" json:"quantity"`
	UnitPrice  int64  `bun:"unit_price" json:"unit_price"`
}

type LineItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type OrderRequest struct {
	ShopID string            `json:"shop_id"`
	Items  []LineItemRequest `json:"items"`
}

type OrderResponse struct {
	OrderID         string `json:"order_id"`
	ShopID          string `json:"shop_id"`
	BuyerID         string `json:"buyer_id"`
	PickupCode      string `json:"pickup_code"`
	Subtotal        int64  `json:"subtotal"`
	ProcessingFee   int64  `json:"processing_fee"`
	BuyerTotal      int64  `json:"buyer_total"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
}

// OrderWithItems bundles an order with its line items for API responses.
type OrderWithItems struct {
	Order
	Items []OrderLineItem `json:"items"`
}

type CollectRequest struct {
	PickupCode string `json:"pickup_code"`
}

type CollectResponse struct {
	OrderID     string    `json:"order_id"`
	ShopNet     int64     `json:"shop_net"`
	Currency    string    `json:"currency"`
	CollectedAt time.Time `json:"collected_at"`
}
