package postgres

import (
	"context"
	"fmt"

	"rainshop/internal/money"
	"rainshop/internal/store"
)

// Items of orders outside the window join a NULL order and count towards
// nothing. Products without any items are still listed.
const productStatsQuery = `
	SELECT p.id, p.name,
	       COALESCE(SUM(oi.quantity) FILTER (WHERE o.id IS NOT NULL), 0),
	       COALESCE(SUM(oi.quantity) FILTER (WHERE o.status IN ('CANCELLED', 'RETURNED')), 0),
	       (SUM(oi.product_final_price) FILTER (WHERE o.status = 'PAID'))::text,
	       (SUM(p.cost * oi.quantity) FILTER (WHERE o.status = 'PAID'))::text,
	       p.price_currency, p.cost_currency
	FROM products p
	LEFT JOIN order_items oi ON oi.product_id = p.id
	LEFT JOIN orders o ON o.id = oi.order_id
	     AND ($1::timestamptz IS NULL OR o.created_at >= $1)
	     AND ($2::timestamptz IS NULL OR o.created_at < $2)
	GROUP BY p.id, p.name, p.price_currency, p.cost_currency
	ORDER BY p.id`

const orderCountsQuery = `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE status = 'CREATED'),
	       COUNT(*) FILTER (WHERE status = 'PAID'),
	       COUNT(*) FILTER (WHERE status = 'CANCELLED'),
	       COUNT(*) FILTER (WHERE status = 'RETURNED')
	FROM orders
	WHERE ($1::timestamptz IS NULL OR created_at >= $1)
	  AND ($2::timestamptz IS NULL OR created_at < $2)`

func (s *Store) ProductStats(ctx context.Context, filter store.StatsFilter) ([]store.ProductStats, error) {
	rows, err := s.pool.Query(ctx, productStatsQuery, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query product stats: %w", err)
	}
	defer rows.Close()

	out := []store.ProductStats{}
	for rows.Next() {
		var (
			ps                store.ProductStats
			gross, cost       *string
			priceCur, costCur string
		)
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.Ordered, &ps.Returned,
			&gross, &cost, &priceCur, &costCur); err != nil {
			return nil, err
		}
		if ps.GrossIncome, err = optionalMoney(gross, priceCur); err != nil {
			return nil, err
		}
		if ps.Cost, err = optionalMoney(cost, costCur); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *Store) OrderCounts(ctx context.Context, filter store.StatsFilter) (store.OrderCounts, error) {
	var c store.OrderCounts
	err := s.pool.QueryRow(ctx, orderCountsQuery, filter.From, filter.To).
		Scan(&c.Total, &c.Created, &c.Paid, &c.Cancelled, &c.Returned)
	if err != nil {
		return store.OrderCounts{}, fmt.Errorf("failed to count orders: %w", err)
	}
	return c, nil
}

func optionalMoney(amount *string, currency string) (*money.Money, error) {
	if amount == nil {
		return nil, nil
	}
	m, err := scanMoney(*amount, currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
