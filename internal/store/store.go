// Package store defines the persistence contracts used by the shop services.
// Every multi-row write goes through a Tx obtained from Store.Begin; the
// caller decides the unit-of-work boundary and commits or rolls back
// explicitly.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rainshop/internal/domain"
	"rainshop/internal/money"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional write matched no row because
	// the row changed since it was read.
	ErrConflict = errors.New("store: conflict")
	// ErrStockExhausted is returned when a stock adjustment would drive a
	// product quantity below zero.
	ErrStockExhausted = errors.New("store: stock exhausted")
)

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

// StatsFilter restricts the stats aggregates to orders created in
// [From, To). A nil bound is open.
type StatsFilter struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the filter window.
func (f StatsFilter) Contains(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Before(*f.To) {
		return false
	}
	return true
}

// ProductStats is the per-product aggregate over order items. Money fields
// are nil when no PAID order contains the product.
type ProductStats struct {
	ProductID   int64
	Name        string
	Ordered     int
	Returned    int
	GrossIncome *money.Money
	Cost        *money.Money
}

// OrderCounts counts orders per status.
type OrderCounts struct {
	Total     int
	Created   int
	Paid      int
	Cancelled int
	Returned  int
}

// Reader holds the read-only queries served from committed state.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, page Page) ([]domain.Product, int, error)

	// GetCartLine and the listings join the live product row.
	GetCartLine(ctx context.Context, id int64) (*domain.CartLine, error)
	ListCartLines(ctx context.Context, userID int64, page Page) ([]domain.CartLine, int, error)
	// CartSnapshot returns every line of the user's cart with its product,
	// read from one consistent view.
	CartSnapshot(ctx context.Context, userID int64) ([]domain.CartLine, error)

	// GetOrder returns the order with its items.
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64, page Page) ([]domain.Order, int, error)

	UserIDForToken(ctx context.Context, key string) (int64, error)

	ProductStats(ctx context.Context, filter StatsFilter) ([]ProductStats, error)
	OrderCounts(ctx context.Context, filter StatsFilter) (OrderCounts, error)
}

// Store is the injected persistence handle.
type Store interface {
	Reader

	// Begin opens a unit of work. The caller must end it with Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// PendingEvents returns up to limit outbox entries not yet relayed, oldest first.
	PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEntry, error)
	MarkEventSent(ctx context.Context, id int64) error

	Close()
}

// Tx is an atomic unit of work. None of its writes are visible to other
// readers until Commit succeeds; after Rollback none of them ever are.
type Tx interface {
	GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error)
	InsertProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	// AdjustStock adds delta to the product quantity and returns the new
	// quantity. It fails with ErrStockExhausted instead of going below zero.
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)

	FindCartLineForUpdate(ctx context.Context, userID, productID int64) (*domain.CartLine, error)
	GetCartLineForUpdate(ctx context.Context, id int64) (*domain.CartLine, error)
	// SaveCartLine inserts the line when its ID is zero, otherwise updates
	// its quantity.
	SaveCartLine(ctx context.Context, line *domain.CartLine) error
	// CartSnapshotForUpdate returns every line of the user's cart with its
	// product, ordered by product ID, and locks both rows of each line until
	// the unit of work ends.
	CartSnapshotForUpdate(ctx context.Context, userID int64) ([]domain.CartLine, error)
	// DeleteCartLines fails with ErrConflict unless every id was deleted.
	DeleteCartLines(ctx context.Context, ids ...int64) error

	// InsertOrder assigns the order ID. Items are inserted separately.
	InsertOrder(ctx context.Context, order *domain.Order) error
	// InsertOrderItems assigns item IDs and links them to orderID.
	InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error
	GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateOrderStatus moves the order from -> to, failing with ErrConflict
	// if the stored status is no longer from.
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus, at time.Time) error

	AppendEvent(ctx context.Context, event domain.OrderEvent) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithTx runs fn inside a unit of work, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, s Store, fn func(tx Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
