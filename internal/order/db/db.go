package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-gifting/internal/models"

	"github.com/uptrace/bun"
)

var (
	// ErrOrderNotFound is returned for unknown order ids and pickup codes.
	ErrOrderNotFound = errors.New("order not found")
	// ErrShopNotFound is returned for unknown shop ids.
	ErrShopNotFound = errors.New("shop not found")
	// ErrStaleTransition is returned when a guarded status or payout-flag
	// update finds the row already advanced past the expected state. Callers
	// treat it as "already processed", never as corruption.
	ErrStaleTransition = errors.New("order state changed since read")
)

// outstandingStatuses are the states in which a pickup code is still live.
var outstandingStatuses = []models.OrderStatus{
	models.StatusPendingPayment,
	models.StatusPaid,
}

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder inserts an order and its line items in one transaction.
func (d *DB) CreateOrder(order models.Order, items []models.OrderLineItem) error {
	ctx := context.Background()
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&order).Exec(ctx); err != nil {
			return err
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) GetOrderByID(id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPickupCode resolves a pickup code to its newest order. Codes are
// recyclable once an order leaves the outstanding states, so the latest issue
// wins; the caller inspects the status to tell a live order from one that was
// already collected.
func (d *DB) GetOrderByPickupCode(code string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("pickup_code = ?", code).
		Order("created_at DESC").
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// PickupCodeInUse reports whether a code is held by any outstanding order.
// The engine regenerates on collision; a partial unique index in Postgres
// backstops the check under concurrency.
func (d *DB) PickupCodeInUse(code string) (bool, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("pickup_code = ?", code).
		Where("status IN (?)", bun.In(outstandingStatuses)).
		Count(context.Background())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DB) GetLineItems(orderID string) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) GetOrdersByBuyer(buyerID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- GUARDED TRANSITIONS ----------------

// TransitionStatus performs the compare-and-swap at the heart of the state
// machine: a single conditional UPDATE that only succeeds when the current
// status equals from. Zero rows affected means someone else advanced the
// order first.
func (d *DB) TransitionStatus(orderID string, from, to models.OrderStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Where("order_id = ?", orderID).
		Where("status = ?", from).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.checkAffected(res, orderID)
}

// MarkPaid is the pending_payment -> paid transition. It stamps paid_at and
// the gateway transaction reference under the same conditional write.
func (d *DB) MarkPaid(orderID, transactionRef string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusPaid).
		Set("paid_at = ?", time.Now()).
		Set("transaction_ref = ?", transactionRef).
		Where("order_id = ?", orderID).
		Where("status = ?", models.StatusPendingPayment).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.checkAffected(res, orderID)
}

// MarkCollected is the paid -> collected transition, stamping collected_at.
func (d *DB) MarkCollected(orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusCollected).
		Set("collected_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("status = ?", models.StatusPaid).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.checkAffected(res, orderID)
}

// MarkPayoutSent flips the payout flag exactly once. The guard requires the
// order to be collected and the flag still false, so a retried disbursement
// observes ErrStaleTransition instead of double-paying.
func (d *DB) MarkPayoutSent(orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payout_sent = ?", true).
		Where("order_id = ?", orderID).
		Where("payout_sent = ?", false).
		Where("status = ?", models.StatusCollected).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.checkAffected(res, orderID)
}

// UpdatePaymentIntent attaches the gateway payment reference after the
// external call, outside any guarded section.
func (d *DB) UpdatePaymentIntent(orderID, intentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_intent_id = ?", intentID).
		Where("order_id = ?", orderID).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.checkAffected(res, orderID)
}

// checkAffected distinguishes a stale guard from a missing row.
func (d *DB) checkAffected(res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := d.GetOrderByID(orderID); err != nil {
		return err
	}
	return ErrStaleTransition
}
