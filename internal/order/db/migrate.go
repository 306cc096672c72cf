package db

import (
	"context"
	"log"

	"ms-gifting/internal/models"

	"github.com/uptrace/bun"
)

// Migrate creates the core tables if they are missing. Production schemas
// come from the SQL migrations; this keeps dev and in-memory test databases
// usable without the migration toolchain.
func Migrate(bunDB *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{
		(*models.Shop)(nil),
		(*models.Order)(nil),
		(*models.OrderLineItem)(nil),
	}

	for _, table := range tables {
		_, err := bunDB.NewCreateTable().
			Model(table).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			log.Fatalf("failed to create table for %T: %v", table, err)
		}
	}
}
