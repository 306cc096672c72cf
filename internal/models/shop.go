package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PromoWindow is a time range during which a shop's commission is waived.
type PromoWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window (start inclusive,
// end exclusive).
func (w PromoWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Shop is referenced by orders, never owned by them. The commission rate is
// stored in integer basis points so fee math never touches floats.
type Shop struct {
	bun.BaseModel `bun:"table:shops"`

	ShopID            string     `bun:"shop_id,pk" json:"shop_id"`
	Name              string     `bun:"name" json:"name"`
	CommissionRateBps int        `bun:"commission_rate_bps" json:"commission_rate_bps"`
	PromoStart        *time.Time `bun:"promo_start,nullzero" json:"promo_start,omitempty"`
	PromoEnd          *time.Time `bun:"promo_end,nullzero" json:"promo_end,omitempty"`
	PayoutAccountID   string     `bun:"payout_account_id,nullzero" json:"payout_account_id,omitempty"`
	PayoutAccountName string     `bun:"payout_account_name,nullzero" json:"payout_account_name,omitempty"`
	CreatedAt         time.Time  `bun:"created_at" json:"created_at"`
}

// PromoWindow returns the shop's commission-free window, or nil when no
// window is configured.
func (s *Shop) PromoWindow() *PromoWindow {
	if s.PromoStart == nil || s.PromoEnd == nil {
		return nil
	}
	return &PromoWindow{Start: *s.PromoStart, End: *s.PromoEnd}
}

// PayoutDestinationComplete reports whether the shop can receive transfers.
// A shop without a complete destination may still take paid orders, but any
// payout attempt against it must fail loudly.
func (s *Shop) PayoutDestinationComplete() bool {
	return s.PayoutAccountID != "" && s.PayoutAccountName != ""
}
