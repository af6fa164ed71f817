// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rainshop/internal/domain"
	"rainshop/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &tx{tx: pgTx}, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.pool, id, false)
}

func (s *Store) ListProducts(ctx context.Context, page store.Page) ([]domain.Product, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products p ORDER BY p.id LIMIT $1 OFFSET $2`,
		limitArg(page), page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

func (s *Store) GetCartLine(ctx context.Context, id int64) (*domain.CartLine, error) {
	return getCartLine(ctx, s.pool, `c.id = $1`, false, id)
}

func (s *Store) ListCartLines(ctx context.Context, userID int64, page store.Page) ([]domain.CartLine, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM carts WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cart lines: %w", err)
	}
	lines, err := queryCartLines(ctx, s.pool,
		cartSelect+` WHERE c.user_id = $1 ORDER BY c.id LIMIT $2 OFFSET $3`,
		userID, limitArg(page), page.Offset)
	if err != nil {
		return nil, 0, err
	}
	return lines, total, nil
}

func (s *Store) CartSnapshot(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return queryCartLines(ctx, s.pool, cartSelect+` WHERE c.user_id = $1 ORDER BY c.id`, userID)
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return getOrder(ctx, s.pool, id, false)
}

func (s *Store) ListOrders(ctx context.Context, userID int64, page store.Page) ([]domain.Order, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limitArg(page), page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := queryOrderItems(ctx, s.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

func (s *Store) UserIDForToken(ctx context.Context, key string) (int64, error) {
	var userID int64
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM auth_tokens WHERE key = $1`, key).Scan(&userID)
	if err != nil {
		return 0, notFound(err, "token")
	}
	return userID, nil
}

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload FROM outbox_events WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		var (
			entry   domain.OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("outbox event %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) MarkEventSent(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET sent_at = NOW() WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func limitArg(page store.Page) any {
	if page.Limit <= 0 {
		return nil // LIMIT NULL means no limit
	}
	return page.Limit
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// translate maps constraint violations onto the store sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrConflict)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrNotFound)
	case "23514": // check_violation
		if pgErr.ConstraintName == "products_quantity_check" {
			return store.ErrStockExhausted
		}
	}
	return err
}

var _ store.Store = (*Store)(nil)
