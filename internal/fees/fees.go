package fees

import (
	"errors"
	"time"

	"ms-gifting/internal/models"
)

// ErrInvalidRate is returned when a commission rate is outside [0, 10000]
// basis points (0%..100%).
var ErrInvalidRate = errors.New("commission rate out of range")

const bpsDenominator = 10000

// Breakdown is the financial split of an order, all integer minor units.
type Breakdown struct {
	Commission    int64
	ProcessingFee int64
	BuyerTotal    int64
	ShopNet       int64
}

// Policy computes the platform's cut of an order. The processing fee is
// charged additively to the buyer, never subtracted from the shop's net.
type Policy struct {
	ProcessingFeeFlat int64
	ProcessingFeeBps  int
}

// Quote computes the fee breakdown for a subtotal under the shop's frozen
// commission terms. If now falls inside the promo window the commission is
// waived regardless of the configured rate. commission + shopNet always
// equals subtotal exactly.
func (p Policy) Quote(subtotal int64, commissionRateBps int, promo *models.PromoWindow, now time.Time) (Breakdown, error) {
	if commissionRateBps < 0 || commissionRateBps > bpsDenominator {
		return Breakdown{}, ErrInvalidRate
	}

	var commission int64
	if promo == nil || !promo.Contains(now) {
		commission = roundHalfUpBps(subtotal, commissionRateBps)
	}

	fee := p.ProcessingFeeFlat + roundHalfUpBps(subtotal, p.ProcessingFeeBps)

	return Breakdown{
		Commission:    commission,
		ProcessingFee: fee,
		BuyerTotal:    subtotal + fee,
		ShopNet:       subtotal - commission,
	}, nil
}

// roundHalfUpBps applies a basis-point rate with round-half-up semantics,
// entirely in integer arithmetic.
func roundHalfUpBps(amount int64, bps int) int64 {
	return (amount*int64(bps) + bpsDenominator/2) / bpsDenominator
}
