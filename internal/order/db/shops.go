package db

import (
	"context"
	"database/sql"
	"errors"

	"ms-gifting/internal/models"
)

// ---------------- SHOPS ----------------

// GetShopByID fetches the shop's current commission terms and payout
// destination. Shops are referenced by orders, never mutated here.
func (d *DB) GetShopByID(id string) (*models.Shop, error) {
	var shop models.Shop
	err := d.Bun.NewSelect().
		Model(&shop).
		Where("shop_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}
