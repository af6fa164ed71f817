// Package memory is an in-process store.Store. Units of work are serialized:
// Begin takes an exclusive lock and works on a private copy of the data that
// Commit publishes atomically.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"rainshop/internal/domain"
	"rainshop/internal/money"
	"rainshop/internal/store"
)

var errTxDone = errors.New("memory: transaction already finished")

type outboxRow struct {
	id    int64
	event domain.OrderEvent
	sent  bool
}

type state struct {
	products map[int64]domain.Product
	carts    map[int64]domain.CartLine
	orders   map[int64]domain.Order
	items    map[int64]domain.OrderItem
	tokens   map[string]int64
	outbox   []outboxRow

	productSeq int64
	cartSeq    int64
	orderSeq   int64
	itemSeq    int64
	outboxSeq  int64
}

func newState() *state {
	return &state{
		products: make(map[int64]domain.Product),
		carts:    make(map[int64]domain.CartLine),
		orders:   make(map[int64]domain.Order),
		items:    make(map[int64]domain.OrderItem),
		tokens:   make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := *s
	c.products = make(map[int64]domain.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.carts = make(map[int64]domain.CartLine, len(s.carts))
	for k, v := range s.carts {
		c.carts[k] = v
	}
	c.orders = make(map[int64]domain.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = make(map[int64]domain.OrderItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = v
	}
	c.tokens = make(map[string]int64, len(s.tokens))
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	c.outbox = append([]outboxRow(nil), s.outbox...)
	return &c
}

// Store keeps all rows in memory. Writes outside a Tx also take txMu so an
// open unit of work cannot overwrite them on commit.
type Store struct {
	txMu sync.Mutex // held for the lifetime of a unit of work

	mu     sync.RWMutex
	data   *state
	faults map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), faults: make(map[string]error)}
}

// InjectFault makes the next call of the named Tx method (for example
// "InsertOrderItems" or "Commit") fail with err.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) takeFault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.faults[op]
	if ok {
		delete(s.faults, op)
	}
	return err
}

// AddToken registers an API token for a user.
func (s *Store) AddToken(key string, userID int64) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tokens[key] = userID
}

func (s *Store) Close() {}

func (s *Store) read() (*state, func()) {
	s.mu.RLock()
	return s.data, s.mu.RUnlock
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	st, done := s.read()
	defer done()
	return st.product(id)
}

func (s *Store) ListProducts(ctx context.Context, page store.Page) ([]domain.Product, int, error) {
	st, done := s.read()
	defer done()

	ids := sortedKeys(st.products)
	out := make([]domain.Product, 0, len(ids))
	for _, id := range window(ids, page) {
		out = append(out, st.products[id])
	}
	return out, len(ids), nil
}

func (s *Store) GetCartLine(ctx context.Context, id int64) (*domain.CartLine, error) {
	st, done := s.read()
	defer done()
	return st.cartLine(id)
}

func (s *Store) ListCartLines(ctx context.Context, userID int64, page store.Page) ([]domain.CartLine, int, error) {
	st, done := s.read()
	defer done()

	ids := st.userCartIDs(userID)
	out := make([]domain.CartLine, 0, len(ids))
	for _, id := range window(ids, page) {
		line, err := st.cartLine(id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *line)
	}
	return out, len(ids), nil
}

func (s *Store) CartSnapshot(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	st, done := s.read()
	defer done()

	var out []domain.CartLine
	for _, id := range st.userCartIDs(userID) {
		line, err := st.cartLine(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *line)
	}
	return out, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	st, done := s.read()
	defer done()
	return st.order(id)
}

func (s *Store) ListOrders(ctx context.Context, userID int64, page store.Page) ([]domain.Order, int, error) {
	st, done := s.read()
	defer done()

	var ids []int64
	for id, o := range st.orders {
		if o.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := st.orders[ids[i]], st.orders[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	out := make([]domain.Order, 0, len(ids))
	for _, id := range window(ids, page) {
		o, err := st.order(id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, len(ids), nil
}

func (s *Store) UserIDForToken(ctx context.Context, key string) (int64, error) {
	st, done := s.read()
	defer done()
	userID, ok := st.tokens[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	return userID, nil
}

func (s *Store) ProductStats(ctx context.Context, filter store.StatsFilter) ([]store.ProductStats, error) {
	st, done := s.read()
	defer done()

	byProduct := make(map[int64]*store.ProductStats, len(st.products))
	for _, id := range sortedKeys(st.products) {
		p := st.products[id]
		byProduct[id] = &store.ProductStats{ProductID: p.ID, Name: p.Name}
	}

	for _, item := range st.items {
		if item.ProductID == nil {
			continue
		}
		ps, ok := byProduct[*item.ProductID]
		if !ok {
			continue
		}
		o := st.orders[item.OrderID]
		if !filter.Contains(o.CreatedAt) {
			continue
		}
		ps.Ordered += item.Quantity
		switch o.Status {
		case domain.OrderStatusCancelled, domain.OrderStatusReturned:
			ps.Returned += item.Quantity
		case domain.OrderStatusPaid:
			product := st.products[*item.ProductID]
			ps.GrossIncome = addAmount(ps.GrossIncome, item.LineTotal.Amount, item.LineTotal.Currency)
			cost := product.Cost.Mul(item.Quantity)
			ps.Cost = addAmount(ps.Cost, cost.Amount, cost.Currency)
		}
	}

	out := make([]store.ProductStats, 0, len(byProduct))
	for _, id := range sortedKeys(st.products) {
		out = append(out, *byProduct[id])
	}
	return out, nil
}

func (s *Store) OrderCounts(ctx context.Context, filter store.StatsFilter) (store.OrderCounts, error) {
	st, done := s.read()
	defer done()

	var c store.OrderCounts
	for _, o := range st.orders {
		if !filter.Contains(o.CreatedAt) {
			continue
		}
		c.Total++
		switch o.Status {
		case domain.OrderStatusCreated:
			c.Created++
		case domain.OrderStatusPaid:
			c.Paid++
		case domain.OrderStatusCancelled:
			c.Cancelled++
		case domain.OrderStatusReturned:
			c.Returned++
		}
	}
	return c, nil
}

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	st, done := s.read()
	defer done()

	var out []domain.OutboxEntry
	for _, row := range st.outbox {
		if row.sent {
			continue
		}
		out = append(out, domain.OutboxEntry{ID: row.id, Event: row.event})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkEventSent(ctx context.Context, id int64) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.outbox {
		if s.data.outbox[i].id == id {
			s.data.outbox[i].sent = true
			return nil
		}
	}
	return store.ErrNotFound
}

// Begin blocks until no other unit of work is open, or ctx is done.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	acquired := make(chan struct{})
	go func() {
		s.txMu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		go func() {
			<-acquired
			s.txMu.Unlock()
		}()
		return nil, ctx.Err()
	}

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()
	return &tx{store: s, data: work}, nil
}

func addAmount(acc *money.Money, amount decimal.Decimal, currency string) *money.Money {
	if acc == nil {
		return &money.Money{Amount: amount, Currency: currency}
	}
	sum := money.Money{Amount: acc.Amount.Add(amount), Currency: acc.Currency}
	return &sum
}

func (st *state) product(id int64) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (st *state) cartLine(id int64) (*domain.CartLine, error) {
	line, ok := st.carts[id]
	if !ok {
		return nil, fmt.Errorf("cart line %d: %w", id, store.ErrNotFound)
	}
	p, err := st.product(line.ProductID)
	if err != nil {
		return nil, err
	}
	line.Product = p
	return &line, nil
}

func (st *state) userCartIDs(userID int64) []int64 {
	var ids []int64
	for id, line := range st.carts {
		if line.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (st *state) order(id int64) (*domain.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	o.Items = nil
	for _, itemID := range sortedKeys(st.items) {
		if item := st.items[itemID]; item.OrderID == id {
			o.Items = append(o.Items, item)
		}
	}
	return &o, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func window(ids []int64, page store.Page) []int64 {
	if page.Offset >= len(ids) {
		return nil
	}
	ids = ids[page.Offset:]
	if page.Limit > 0 && page.Limit < len(ids) {
		ids = ids[:page.Limit]
	}
	return ids
}

var _ store.Store = (*Store)(nil)
