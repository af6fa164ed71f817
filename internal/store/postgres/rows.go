package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rainshop/internal/domain"
	"rainshop/internal/money"
)

// Amounts travel as text so NUMERIC precision survives the round trip.
const productColumns = `p.id, p.name, p.cost::text, p.cost_currency, p.price::text, p.price_currency,
	p.quantity, p.created_at, p.updated_at`

const cartSelect = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at, ` +
	productColumns + ` FROM carts c JOIN products p ON p.id = c.product_id`

const orderColumns = `id, user_id, status, order_price::text, currency, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, product_price::text,
	product_final_price::text, currency, quantity, created_at`

func scanMoney(amount, currency string) (money.Money, error) {
	m, err := money.Parse(amount, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("invalid stored amount %q %q: %w", amount, currency, err)
	}
	return m, nil
}

// productRow holds the raw productColumns values.
type productRow struct {
	p               domain.Product
	cost, costCur   string
	price, priceCur string
}

func (r *productRow) dest() []any {
	return []any{&r.p.ID, &r.p.Name, &r.cost, &r.costCur, &r.price, &r.priceCur,
		&r.p.Quantity, &r.p.CreatedAt, &r.p.UpdatedAt}
}

func (r *productRow) product() (*domain.Product, error) {
	var err error
	if r.p.Cost, err = scanMoney(r.cost, r.costCur); err != nil {
		return nil, err
	}
	if r.p.Price, err = scanMoney(r.price, r.priceCur); err != nil {
		return nil, err
	}
	p := r.p
	return &p, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var r productRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.product()
}

func getProduct(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("product %d", id))
	}
	return p, nil
}

func scanCartLine(row pgx.Row) (*domain.CartLine, error) {
	var (
		line domain.CartLine
		pr   productRow
	)
	dest := append([]any{&line.ID, &line.UserID, &line.ProductID, &line.Quantity,
		&line.CreatedAt, &line.UpdatedAt}, pr.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p, err := pr.product()
	if err != nil {
		return nil, err
	}
	line.Product = p
	return &line, nil
}

// getCartLine loads one line matching where. With forUpdate both the cart
// row and its product row are locked.
func getCartLine(ctx context.Context, q querier, where string, forUpdate bool, args ...any) (*domain.CartLine, error) {
	query := cartSelect + ` WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}
	line, err := scanCartLine(q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "cart line")
	}
	return line, nil
}

func queryCartLines(ctx context.Context, q querier, query string, args ...any) ([]domain.CartLine, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o          domain.Order
		total, cur string
		status     string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &total, &cur, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	var err error
	if o.Total, err = scanMoney(total, cur); err != nil {
		return nil, err
	}
	return &o, nil
}

func getOrder(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("order %d", id))
	}
	items, err := queryOrderItems(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// queryOrderItems returns the items of the given orders keyed by order id.
func queryOrderItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item         domain.OrderItem
			price, total string
			cur          string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&price, &total, &cur, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		if item.ProductPrice, err = scanMoney(price, cur); err != nil {
			return nil, err
		}
		if item.LineTotal, err = scanMoney(total, cur); err != nil {
			return nil, err
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	return out, rows.Err()
}
