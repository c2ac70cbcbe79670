package store

import (
	"context"
	"fmt"
)

// orders.user_id is RESTRICT rather than CASCADE: user deletion must go through
// order reconciliation so held stock is returned.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(50)  NOT NULL UNIQUE,
		email         VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(255)   NOT NULL,
		price      NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
		stock      INTEGER        NOT NULL CHECK (stock >= 0),
		created_at TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ    NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT      NOT NULL REFERENCES users (id) ON DELETE RESTRICT,
		product_id BIGINT      NOT NULL REFERENCES products (id) ON DELETE RESTRICT,
		quantity   INTEGER     NOT NULL CHECK (quantity > 0),
		status     VARCHAR(16) NOT NULL DEFAULT 'CREATED'
			CHECK (status IN ('CREATED', 'SHIPPED', 'DELIVERED', 'CANCELLED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_product_id ON orders (product_id)`,
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
