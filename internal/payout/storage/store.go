package storage

import (
	"ms-gifting/internal/models"
)

type Store interface {
	// Payout operations
	SavePayout(payout *models.Payout) error
	GetPayout(id string) (*models.Payout, error)
	GetPayoutByOrderID(orderID string) (*models.Payout, error)
	ListPayouts(shopID string, limit, offset int) ([]*models.Payout, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
