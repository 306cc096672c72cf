package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"ms-gifting/internal/config"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/models"

	_ "github.com/lib/pq"
)

var ErrPayoutNotFound = errors.New("payout not found")

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a payout store on an existing connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating payout storage with existing database connection")

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payout tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payout tables: %w", err)
	}

	log.Info("DATABASE", "Payout storage initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payouts table if not exists")

	// Amounts are integer minor units; one payout per order.
	payoutsQuery := `
    CREATE TABLE IF NOT EXISTS payouts (
        payout_id VARCHAR(36) PRIMARY KEY,
        order_id VARCHAR(36) NOT NULL UNIQUE,
        shop_id VARCHAR(36) NOT NULL,
        amount BIGINT NOT NULL,
        currency VARCHAR(10) NOT NULL,
        transfer_ref VARCHAR(255),
        status VARCHAR(50) NOT NULL,
        failure_note VARCHAR(500),
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(payoutsQuery); err != nil {
		return fmt.Errorf("failed to create payouts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payouts_shop_id ON payouts(shop_id);",
		"CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);",
		"CREATE INDEX IF NOT EXISTS idx_payouts_created_at ON payouts(created_at);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payout tables and indexes ready")
	return nil
}

// SavePayout records the outcome of a disbursement attempt. One row per
// order: a retried disbursement overwrites the earlier failed attempt.
func (s *PostgreSQLStore) SavePayout(payout *models.Payout) error {
	s.log.LogDatabase("INSERT", "postgresql", fmt.Sprintf("Saving payout %s", payout.PayoutID))

	query := `
    INSERT INTO payouts (
        payout_id, order_id, shop_id, amount, currency, transfer_ref, status, failure_note, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (order_id) DO UPDATE SET
        payout_id = EXCLUDED.payout_id,
        transfer_ref = EXCLUDED.transfer_ref,
        status = EXCLUDED.status,
        failure_note = EXCLUDED.failure_note,
        created_at = EXCLUDED.created_at
    `

	_, err := s.db.Exec(query,
		payout.PayoutID, payout.OrderID, payout.ShopID, payout.Amount, payout.Currency,
		payout.TransferRef, payout.Status, payout.FailureNote, payout.CreatedAt,
	)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payout %s: %s", payout.PayoutID, err.Error()))
		return fmt.Errorf("failed to save payout: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Payout %s saved successfully", payout.PayoutID))
	return nil
}

// GetPayout retrieves a payout by ID
func (s *PostgreSQLStore) GetPayout(id string) (*models.Payout, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Fetching payout %s", id))

	query := `
    SELECT payout_id, order_id, shop_id, amount, currency, transfer_ref, status, failure_note, created_at
    FROM payouts WHERE payout_id = $1
    `

	return s.scanPayout(s.db.QueryRow(query, id), id)
}

// GetPayoutByOrderID retrieves the payout for an order, if one was attempted.
func (s *PostgreSQLStore) GetPayoutByOrderID(orderID string) (*models.Payout, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Fetching payout for order %s", orderID))

	query := `
    SELECT payout_id, order_id, shop_id, amount, currency, transfer_ref, status, failure_note, created_at
    FROM payouts WHERE order_id = $1
    `

	return s.scanPayout(s.db.QueryRow(query, orderID), orderID)
}

func (s *PostgreSQLStore) scanPayout(row *sql.Row, id string) (*models.Payout, error) {
	payout := &models.Payout{}
	var transferRef, failureNote sql.NullString

	err := row.Scan(
		&payout.PayoutID, &payout.OrderID, &payout.ShopID, &payout.Amount, &payout.Currency,
		&transferRef, &payout.Status, &failureNote, &payout.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "postgresql", fmt.Sprintf("Payout %s not found", id))
			return nil, ErrPayoutNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payout %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	payout.TransferRef = transferRef.String
	payout.FailureNote = failureNote.String
	return payout, nil
}

// ListPayouts retrieves payouts for a shop, newest first.
func (s *PostgreSQLStore) ListPayouts(shopID string, limit, offset int) ([]*models.Payout, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Listing payouts for shop %s (limit: %d, offset: %d)", shopID, limit, offset))

	query := `
    SELECT payout_id, order_id, shop_id, amount, currency, transfer_ref, status, failure_note, created_at
    FROM payouts
    WHERE shop_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
    `

	rows, err := s.db.Query(query, shopID, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payouts: %s", err.Error()))
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*models.Payout
	for rows.Next() {
		payout := &models.Payout{}
		var transferRef, failureNote sql.NullString

		err := rows.Scan(
			&payout.PayoutID, &payout.OrderID, &payout.ShopID, &payout.Amount, &payout.Currency,
			&transferRef, &payout.Status, &failureNote, &payout.CreatedAt,
		)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to scan payout row: %s", err.Error()))
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}

		payout.TransferRef = transferRef.String
		payout.FailureNote = failureNote.String
		payouts = append(payouts, payout)
	}

	if err = rows.Err(); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Row iteration error: %s", err.Error()))
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Listed %d payouts for shop %s", len(payouts), shopID))
	return payouts, nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
