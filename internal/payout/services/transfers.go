package services

import (
	"errors"
	"fmt"

	"ms-gifting/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrTransferClientInitFailed = errors.New("failed to initialize Stripe transfer client")

// StripeTransferClient moves a shop's net amount to its connected payout
// account.
type StripeTransferClient struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeTransferClient(secretKey string, log *logger.Logger) (*StripeTransferClient, error) {
	if secretKey == "" {
		log.Error("STRIPE", "Stripe payout secret key not set")
		return nil, ErrTransferClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrTransferClientInitFailed
	}

	log.Info("STRIPE", "Stripe transfer client initialized successfully")
	return &StripeTransferClient{
		client: sc,
		log:    log,
	}, nil
}

// Transfer sends amount (minor units) to the destination account and returns
// the provider's transfer reference. The order id rides along in metadata so
// provider-side records can be reconciled back to orders.
func (c *StripeTransferClient) Transfer(destinationAccountID string, amount int64, currency, orderID string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccountID),
	}
	params.AddMetadata("order_id", orderID)

	transfer, err := c.client.Transfers.New(params)
	if err != nil {
		c.log.Error("STRIPE", fmt.Sprintf("Transfer to %s for order %s failed: %v", destinationAccountID, orderID, err))
		return "", fmt.Errorf("stripe transfer failed: %w", err)
	}

	c.log.Info("STRIPE", fmt.Sprintf("Transferred %d %s to %s for order %s (ref %s)", amount, currency, destinationAccountID, orderID, transfer.ID))
	return transfer.ID, nil
}
