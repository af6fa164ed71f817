package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rainshop/internal/domain"
	"rainshop/internal/store"
)

type tx struct {
	tx pgx.Tx
}

func (t *tx) GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

func (t *tx) InsertProduct(ctx context.Context, p *domain.Product) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO products (name, cost, cost_currency, price, price_currency, quantity, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4::numeric, $5, $6, $7, $8)
		RETURNING id`,
		p.Name, p.Cost.StringFixed(), p.Cost.Currency, p.Price.StringFixed(), p.Price.Currency,
		p.Quantity, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", translate(err))
	}
	return nil
}

func (t *tx) UpdateProduct(ctx context.Context, p *domain.Product) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products
		SET cost = $1::numeric, cost_currency = $2, price = $3::numeric, price_currency = $4,
		    quantity = $5, updated_at = $6
		WHERE id = $7`,
		p.Cost.StringFixed(), p.Cost.Currency, p.Price.StringFixed(), p.Price.Currency,
		p.Quantity, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID, store.ErrNotFound)
	}
	return nil
}

func (t *tx) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// AdjustStock applies delta with a conditional update, so concurrent
// decrements can never take the quantity below zero.
func (t *tx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	var quantity int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET quantity = quantity + $1
		WHERE id = $2 AND quantity + $1 >= 0
		RETURNING quantity`, delta, productID).Scan(&quantity)
	if err == nil {
		return quantity, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust stock: %w", translate(err))
	}

	err = t.tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&quantity)
	if err != nil {
		return 0, notFound(err, fmt.Sprintf("product %d", productID))
	}
	return quantity, store.ErrStockExhausted
}

func (t *tx) FindCartLineForUpdate(ctx context.Context, userID, productID int64) (*domain.CartLine, error) {
	return getCartLine(ctx, t.tx, `c.user_id = $1 AND c.product_id = $2`, true, userID, productID)
}

func (t *tx) GetCartLineForUpdate(ctx context.Context, id int64) (*domain.CartLine, error) {
	return getCartLine(ctx, t.tx, `c.id = $1`, true, id)
}

// CartSnapshotForUpdate takes the row locks in product order so checkouts
// sharing products queue behind each other instead of deadlocking.
func (t *tx) CartSnapshotForUpdate(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return queryCartLines(ctx, t.tx, cartSelect+` WHERE c.user_id = $1 ORDER BY p.id FOR UPDATE`, userID)
}

func (t *tx) SaveCartLine(ctx context.Context, line *domain.CartLine) error {
	if line.ID == 0 {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO carts (user_id, product_id, quantity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.UserID, line.ProductID, line.Quantity, line.CreatedAt, line.UpdatedAt,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("failed to insert cart line: %w", translate(err))
		}
		return nil
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE carts SET quantity = $1, updated_at = $2 WHERE id = $3`,
		line.Quantity, line.UpdatedAt, line.ID)
	if err != nil {
		return fmt.Errorf("failed to update cart line: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart line %d: %w", line.ID, store.ErrNotFound)
	}
	return nil
}

func (t *tx) DeleteCartLines(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM carts WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to delete cart lines: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("deleted %d of %d cart lines: %w", tag.RowsAffected(), len(ids), store.ErrConflict)
	}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, order *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, order_price, currency, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id`,
		order.UserID, string(order.Status), order.Total.StringFixed(), order.Total.Currency,
		order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", translate(err))
	}
	return nil
}

func (t *tx) InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for i := range items {
		item := &items[i]
		batch.Queue(`
			INSERT INTO order_items (order_id, product_id, product_name, product_price,
			                         product_final_price, currency, quantity, created_at)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
			RETURNING id`,
			orderID, item.ProductID, item.ProductName, item.ProductPrice.StringFixed(),
			item.LineTotal.StringFixed(), item.LineTotal.Currency, item.Quantity, item.CreatedAt,
		).QueryRow(func(row pgx.Row) error {
			item.OrderID = orderID
			return row.Scan(&item.ID)
		})
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert order items: %w", translate(err))
	}
	return nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, orderID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d no longer %s: %w", orderID, from, store.ErrConflict)
	}
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, event_type, order_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Type, event.OrderID, payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
