// Package postgres opens the connection pool and applies the schema.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New opens a pool and checks the server is reachable.
func New(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		cost NUMERIC(10,2) NOT NULL,
		cost_currency CHAR(3) NOT NULL DEFAULT 'USD',
		price NUMERIC(10,2) NOT NULL,
		price_currency CHAR(3) NOT NULL DEFAULT 'USD',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS carts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 999),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (user_id, product_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_carts_user_id ON carts(user_id)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'CREATED'
			CHECK (status IN ('CREATED', 'PAID', 'CANCELLED', 'RETURNED')),
		order_price NUMERIC(10,2) NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
		product_name VARCHAR(255) NOT NULL,
		product_price NUMERIC(10,2) NOT NULL,
		product_final_price NUMERIC(10,2) NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 999),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id)`,

	`CREATE TABLE IF NOT EXISTS auth_tokens (
		key VARCHAR(40) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		id BIGSERIAL PRIMARY KEY,
		event_id UUID NOT NULL UNIQUE,
		event_type VARCHAR(64) NOT NULL,
		order_id BIGINT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		sent_at TIMESTAMP WITH TIME ZONE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending ON outbox_events(id) WHERE sent_at IS NULL`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
