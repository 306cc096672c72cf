package models

import (
	"time"
)

type PayoutStatus string

const (
	PayoutStatusSent   PayoutStatus = "sent"
	PayoutStatusFailed PayoutStatus = "failed"
)

// Payout records the outcome of a single disbursement attempt against the
// transfer provider. The authoritative "was the shop paid" bit lives on the
// order row (payout_sent); these rows are the audit trail.
type Payout struct {
	PayoutID    string       `json:"payout_id"`
	OrderID     string       `json:"order_id"`
	ShopID      string       `json:"shop_id"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	TransferRef string       `json:"transfer_ref,omitempty"`
	Status      PayoutStatus `json:"status"`
	FailureNote string       `json:"failure_note,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
