package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rainshop/internal/domain"
	"rainshop/internal/store"
)

type tx struct {
	store *Store
	data  *state
	done  bool
}

func (t *tx) check(op string) error {
	if t.done {
		return errTxDone
	}
	return t.store.takeFault(op)
}

func (t *tx) GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	if err := t.check("GetProductForUpdate"); err != nil {
		return nil, err
	}
	return t.data.product(id)
}

func (t *tx) InsertProduct(ctx context.Context, p *domain.Product) error {
	if err := t.check("InsertProduct"); err != nil {
		return err
	}
	if p.Quantity < 0 {
		return store.ErrStockExhausted
	}
	t.data.productSeq++
	p.ID = t.data.productSeq
	t.data.products[p.ID] = *p
	return nil
}

func (t *tx) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if err := t.check("UpdateProduct"); err != nil {
		return err
	}
	if _, ok := t.data.products[p.ID]; !ok {
		return fmt.Errorf("product %d: %w", p.ID, store.ErrNotFound)
	}
	if p.Quantity < 0 {
		return store.ErrStockExhausted
	}
	t.data.products[p.ID] = *p
	return nil
}

// DeleteProduct drops the product's cart lines and detaches its order items.
func (t *tx) DeleteProduct(ctx context.Context, id int64) error {
	if err := t.check("DeleteProduct"); err != nil {
		return err
	}
	if _, ok := t.data.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	delete(t.data.products, id)
	for lineID, line := range t.data.carts {
		if line.ProductID == id {
			delete(t.data.carts, lineID)
		}
	}
	for itemID, item := range t.data.items {
		if item.ProductID != nil && *item.ProductID == id {
			item.ProductID = nil
			t.data.items[itemID] = item
		}
	}
	return nil
}

func (t *tx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if err := t.check("AdjustStock"); err != nil {
		return 0, err
	}
	p, ok := t.data.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	if p.Quantity+delta < 0 {
		return p.Quantity, store.ErrStockExhausted
	}
	p.Quantity += delta
	t.data.products[productID] = p
	return p.Quantity, nil
}

func (t *tx) FindCartLineForUpdate(ctx context.Context, userID, productID int64) (*domain.CartLine, error) {
	if err := t.check("FindCartLineForUpdate"); err != nil {
		return nil, err
	}
	for _, id := range t.data.userCartIDs(userID) {
		if t.data.carts[id].ProductID == productID {
			return t.data.cartLine(id)
		}
	}
	return nil, fmt.Errorf("cart line for product %d: %w", productID, store.ErrNotFound)
}

func (t *tx) GetCartLineForUpdate(ctx context.Context, id int64) (*domain.CartLine, error) {
	if err := t.check("GetCartLineForUpdate"); err != nil {
		return nil, err
	}
	return t.data.cartLine(id)
}

func (t *tx) CartSnapshotForUpdate(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	if err := t.check("CartSnapshotForUpdate"); err != nil {
		return nil, err
	}
	var out []domain.CartLine
	for _, id := range t.data.userCartIDs(userID) {
		line, err := t.data.cartLine(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *line)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *tx) SaveCartLine(ctx context.Context, line *domain.CartLine) error {
	if err := t.check("SaveCartLine"); err != nil {
		return err
	}
	if _, ok := t.data.products[line.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
	}

	row := *line
	row.Product = nil
	if line.ID == 0 {
		for _, id := range t.data.userCartIDs(line.UserID) {
			if t.data.carts[id].ProductID == line.ProductID {
				return fmt.Errorf("cart line for product %d exists: %w", line.ProductID, store.ErrConflict)
			}
		}
		t.data.cartSeq++
		row.ID = t.data.cartSeq
		line.ID = row.ID
		t.data.carts[row.ID] = row
		return nil
	}

	existing, ok := t.data.carts[line.ID]
	if !ok {
		return fmt.Errorf("cart line %d: %w", line.ID, store.ErrNotFound)
	}
	existing.Quantity = line.Quantity
	existing.UpdatedAt = line.UpdatedAt
	t.data.carts[line.ID] = existing
	return nil
}

func (t *tx) DeleteCartLines(ctx context.Context, ids ...int64) error {
	if err := t.check("DeleteCartLines"); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := t.data.carts[id]; !ok {
			return fmt.Errorf("cart line %d: %w", id, store.ErrConflict)
		}
		delete(t.data.carts, id)
	}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if err := t.check("InsertOrder"); err != nil {
		return err
	}
	t.data.orderSeq++
	order.ID = t.data.orderSeq
	row := *order
	row.Items = nil
	t.data.orders[row.ID] = row
	return nil
}

func (t *tx) InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	if err := t.check("InsertOrderItems"); err != nil {
		return err
	}
	if _, ok := t.data.orders[orderID]; !ok {
		return fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	for i := range items {
		t.data.itemSeq++
		items[i].ID = t.data.itemSeq
		items[i].OrderID = orderID
		t.data.items[items[i].ID] = items[i]
	}
	return nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	if err := t.check("GetOrderForUpdate"); err != nil {
		return nil, err
	}
	return t.data.order(id)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus, at time.Time) error {
	if err := t.check("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := t.data.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("order %d is %s, not %s: %w", orderID, o.Status, from, store.ErrConflict)
	}
	o.Status = to
	o.UpdatedAt = at
	t.data.orders[orderID] = o
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, event domain.OrderEvent) error {
	if err := t.check("AppendEvent"); err != nil {
		return err
	}
	t.data.outboxSeq++
	t.data.outbox = append(t.data.outbox, outboxRow{id: t.data.outboxSeq, event: event})
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.store.takeFault("Commit"); err != nil {
		return err
	}
	t.store.mu.Lock()
	t.store.data = t.data
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback after Commit is a no-op.
func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.data = nil
	t.store.txMu.Unlock()
}
