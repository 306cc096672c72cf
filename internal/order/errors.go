package order

import "errors"

var (
	// ErrInvalidTransition is returned for transition attempts the state
	// machine does not allow at all (e.g. cancelling a paid order).
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	// ErrNotYetPaid is returned when a collection scan arrives for an order
	// still awaiting payment confirmation.
	ErrNotYetPaid = errors.New("order has not been paid yet")
	// ErrWrongShop is returned when an operator presents a pickup code that
	// belongs to another shop's order.
	ErrWrongShop = errors.New("pickup code belongs to a different shop")
	// ErrCodeExpired is returned when the configured pickup-code validity
	// window has elapsed.
	ErrCodeExpired = errors.New("pickup code has expired")
	// ErrUnauthorizedWebhook is returned when a webhook fails signature
	// verification; no state change may follow it.
	ErrUnauthorizedWebhook = errors.New("webhook signature verification failed")
	// ErrEmptyOrder is returned when a checkout carries no line items or a
	// non-positive total.
	ErrEmptyOrder = errors.New("order must contain items with positive quantity and price")
	// ErrCodeSpaceExhausted is returned when pickup-code allocation keeps
	// colliding with outstanding orders.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique pickup code")
)
