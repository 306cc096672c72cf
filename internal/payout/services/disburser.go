package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-gifting/internal/logger"
	"ms-gifting/internal/models"
	"ms-gifting/internal/order/db"
	"ms-gifting/internal/payout/storage"
	"ms-gifting/internal/utils"
)

var (
	// ErrNotCollected is returned when disbursement is attempted before the
	// order has been collected.
	ErrNotCollected = errors.New("order has not been collected")
	// ErrAlreadyPaidOut is returned when the payout flag is already set.
	ErrAlreadyPaidOut = errors.New("payout already sent for this order")
	// ErrIncompleteDestination is returned when the shop has no usable
	// payout account on file.
	ErrIncompleteDestination = errors.New("shop payout destination is incomplete")
	// ErrPayoutProvider wraps transfer failures at the provider.
	ErrPayoutProvider = errors.New("payout provider error")
)

// OrderStore is the slice of the order database the disburser needs.
type OrderStore interface {
	GetOrderByID(id string) (*models.Order, error)
	GetShopByID(id string) (*models.Shop, error)
	MarkPayoutSent(orderID string) error
}

// TransferClient moves money to a shop's payout account.
type TransferClient interface {
	Transfer(destinationAccountID string, amount int64, currency, orderID string) (string, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// Disburser pays shops their frozen net amount once an order is collected.
// The payout_sent flag is flipped with a conditional write only after the
// provider confirms the transfer; a failed transfer leaves the flag false so
// the disbursement can be retried.
type Disburser struct {
	Orders      OrderStore
	Payouts     storage.Store
	Transfers   TransferClient
	Kafka       KafkaPublisher
	PayoutTopic string

	log *logger.Logger
}

func NewDisburser(orders OrderStore, payouts storage.Store, transfers TransferClient, kafka KafkaPublisher, payoutTopic string, log *logger.Logger) *Disburser {
	return &Disburser{
		Orders:      orders,
		Payouts:     payouts,
		Transfers:   transfers,
		Kafka:       kafka,
		PayoutTopic: payoutTopic,
		log:         log,
	}
}

// Disburse sends the shop's net for one collected order. It is safe to call
// on replayed or duplicated events: a replay finds the flag already set and
// exits before reaching the provider.
func (d *Disburser) Disburse(orderID string) (*models.Payout, error) {
	order, err := d.Orders.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.StatusCollected {
		return nil, ErrNotCollected
	}
	if order.PayoutSent {
		return nil, ErrAlreadyPaidOut
	}

	shop, err := d.Orders.GetShopByID(order.ShopID)
	if err != nil {
		return nil, err
	}
	if !shop.PayoutDestinationComplete() {
		d.log.Error("PAYOUT", fmt.Sprintf("Shop %s has no payout destination, order %s held", shop.ShopID, orderID))
		return nil, ErrIncompleteDestination
	}

	transferRef, err := d.Transfers.Transfer(shop.PayoutAccountID, order.ShopNet, order.Currency, orderID)
	if err != nil {
		// The flag stays false so a later Disburse retries the transfer.
		d.recordPayout(order, "", models.PayoutStatusFailed, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrPayoutProvider, err)
	}

	// Flip the flag only now that the provider confirmed the transfer. A
	// loser here means a concurrent worker disbursed the same order; the
	// duplicate transfer must surface, never be hidden.
	if err := d.Orders.MarkPayoutSent(orderID); err != nil {
		if errors.Is(err, db.ErrStaleTransition) {
			d.log.Error("PAYOUT", fmt.Sprintf("Transfer %s for order %s duplicates a concurrent disbursement, review required", transferRef, orderID))
			return nil, ErrAlreadyPaidOut
		}
		d.log.Error("PAYOUT", fmt.Sprintf("Transfer %s sent but flag update failed for order %s: %v", transferRef, orderID, err))
		return nil, err
	}

	payout := d.recordPayout(order, transferRef, models.PayoutStatusSent, "")
	d.log.Info("PAYOUT", fmt.Sprintf("Sent %d %s to shop %s for order %s (ref %s)", order.ShopNet, order.Currency, order.ShopID, orderID, transferRef))

	d.publishPayoutSent(order, transferRef)
	return payout, nil
}

func (d *Disburser) recordPayout(order *models.Order, transferRef string, status models.PayoutStatus, failureNote string) *models.Payout {
	payout := &models.Payout{
		PayoutID:    utils.GeneratePayoutID(),
		OrderID:     order.OrderID,
		ShopID:      order.ShopID,
		Amount:      order.ShopNet,
		Currency:    order.Currency,
		TransferRef: transferRef,
		Status:      status,
		FailureNote: failureNote,
		CreatedAt:   time.Now(),
	}
	if err := d.Payouts.SavePayout(payout); err != nil {
		d.log.Error("PAYOUT", fmt.Sprintf("Failed to record payout for order %s: %v", order.OrderID, err))
	}
	return payout
}

func (d *Disburser) publishPayoutSent(order *models.Order, transferRef string) {
	if d.Kafka == nil {
		return
	}

	event := models.OrderEvent{
		Type:        models.EventPayoutSent,
		OrderID:     order.OrderID,
		ShopID:      order.ShopID,
		BuyerID:     order.BuyerID,
		Status:      order.Status,
		ShopNet:     order.ShopNet,
		Currency:    order.Currency,
		OccurredAt:  time.Now(),
		TransferRef: transferRef,
	}

	value, err := json.Marshal(event)
	if err != nil {
		d.log.Error("KAFKA", fmt.Sprintf("Failed to marshal payout event for order %s: %v", order.OrderID, err))
		return
	}
	if err := d.Kafka.Publish(d.PayoutTopic, order.OrderID, value); err != nil {
		d.log.Error("KAFKA", fmt.Sprintf("Failed to publish payout event for order %s: %v", order.OrderID, err))
	}
}
