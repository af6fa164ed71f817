package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"rainshop/internal/cart"
	"rainshop/internal/domain"
	"rainshop/internal/money"
	"rainshop/internal/store"
	"rainshop/internal/store/memory"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

var fixedNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

type fataler interface {
	Fatalf(format string, args ...any)
}

type fixture struct {
	store  *memory.Store
	orders *Service
	cart   *cart.Service
}

func newFixture(t fataler) *fixture {
	st := memory.New()
	tracer := noop.NewTracerProvider().Tracer("test")
	return &fixture{
		store:  st,
		orders: NewService(st, zap.NewNop(), tracer, WithClock(func() time.Time { return fixedNow })),
		cart:   cart.NewService(st, zap.NewNop(), tracer),
	}
}

func (f *fixture) product(t fataler, name, price string, qty int) *domain.Product {
	p := &domain.Product{
		Name:     name,
		Cost:     money.MustParse("1.00", "USD"),
		Price:    money.MustParse(price, "USD"),
		Quantity: qty,
	}
	err := store.WithTx(context.Background(), f.store, func(tx store.Tx) error {
		return tx.InsertProduct(context.Background(), p)
	})
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return p
}

func (f *fixture) add(t fataler, userID, productID int64, qty int) {
	if _, err := f.cart.AddOrMerge(context.Background(), userID, cart.AddToCartRequest{ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

func (f *fixture) stock(t fataler, productID int64) int {
	p, err := f.store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Quantity
}

func TestCheckoutAndCancelExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)

	f.add(t, alice, p.ID, 3)
	f.add(t, alice, p.ID, 4)
	lines, err := f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 7, lines[0].Quantity)

	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	assert.True(t, order.Total.Equal(money.MustParse("35.00", "USD")))
	assert.Equal(t, 3, f.stock(t, p.ID))
	lines, err = f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "umbrella", item.ProductName)
	assert.Equal(t, "5.00", item.ProductPrice.StringFixed())
	assert.Equal(t, "35.00", item.LineTotal.StringFixed())
	assert.Equal(t, 7, item.Quantity)

	cancelled, err := f.orders.CancelOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.PlaceOrder(context.Background(), alice)
	assert.True(t, domain.IsKind(err, domain.KindEmptyCart))
}

func TestPlaceOrderInsufficientStockIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "boots", "20.00", 5)
	b := f.product(t, "raincoat", "40.00", 5)
	f.add(t, alice, a.ID, 2)
	f.add(t, alice, b.ID, 4)

	err := store.WithTx(ctx, f.store, func(tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, b.ID, -4)
		return err
	})
	require.NoError(t, err)

	_, err = f.orders.PlaceOrder(ctx, alice)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindInsufficientStock, de.Kind)
	assert.Equal(t, b.ID, de.ProductID)
	require.NotNil(t, de.Remaining)
	assert.Equal(t, 1, *de.Remaining)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	lines, err := f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	_, total, err := f.orders.ListOrders(ctx, alice, store.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPlaceOrderFailureLeavesStateUnchanged(t *testing.T) {
	for _, op := range []string{"InsertOrder", "InsertOrderItems", "AdjustStock", "DeleteCartLines", "AppendEvent", "Commit"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.product(t, "boots", "20.00", 5)
			b := f.product(t, "raincoat", "40.00", 5)
			f.add(t, alice, a.ID, 2)
			f.add(t, alice, b.ID, 3)

			boom := errors.New("connection reset")
			f.store.InjectFault(op, boom)

			_, err := f.orders.PlaceOrder(ctx, alice)
			require.True(t, domain.IsKind(err, domain.KindOrderCreationFailed), "got %v", err)
			assert.ErrorIs(t, err, boom)

			assert.Equal(t, 5, f.stock(t, a.ID))
			assert.Equal(t, 5, f.stock(t, b.ID))
			lines, err := f.store.CartSnapshot(ctx, alice)
			require.NoError(t, err)
			assert.Len(t, lines, 2)
			_, total, err := f.orders.ListOrders(ctx, alice, store.Page{})
			require.NoError(t, err)
			assert.Zero(t, total)
			pending, err := f.store.PendingEvents(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

// hookedStore runs beforeBegin ahead of the next unit of work and lets
// wrapTx decorate it.
type hookedStore struct {
	*memory.Store
	beforeBegin func()
	wrapTx      func(store.Tx) store.Tx
}

func (h *hookedStore) Begin(ctx context.Context) (store.Tx, error) {
	if h.beforeBegin != nil {
		hook := h.beforeBegin
		h.beforeBegin = nil
		hook()
	}
	tx, err := h.Store.Begin(ctx)
	if err != nil || h.wrapTx == nil {
		return tx, err
	}
	return h.wrapTx(tx), nil
}

// drainingTx empties each product's stock right after the cart is read.
type drainingTx struct {
	store.Tx
}

func (d drainingTx) CartSnapshotForUpdate(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	lines, err := d.Tx.CartSnapshotForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, err := d.Tx.AdjustStock(ctx, line.ProductID, -line.Product.Quantity); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func TestPlaceOrderUsesCartCommittedBeforeCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)
	f.add(t, alice, p.ID, 2)
	lines, err := f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	hooked := &hookedStore{Store: f.store}
	hooked.beforeBegin = func() {
		_, err := f.cart.UpdateCartLine(ctx, alice, lines[0].ID, cart.UpdateCartLineRequest{Quantity: 7})
		require.NoError(t, err)
	}
	svc := NewService(hooked, zap.NewNop(), noop.NewTracerProvider().Tracer("test"), WithClock(func() time.Time { return fixedNow }))

	order, err := svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 7, order.Items[0].Quantity)
	assert.Equal(t, "35.00", order.Total.StringFixed())
	assert.Equal(t, 3, f.stock(t, p.ID))
	left, err := f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestPlaceOrderStockExhaustedMidCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "boots", "20.00", 5)
	b := f.product(t, "raincoat", "40.00", 5)
	f.add(t, alice, a.ID, 2)
	f.add(t, alice, b.ID, 3)

	hooked := &hookedStore{Store: f.store, wrapTx: func(tx store.Tx) store.Tx { return drainingTx{Tx: tx} }}
	svc := NewService(hooked, zap.NewNop(), noop.NewTracerProvider().Tracer("test"))

	_, err := svc.PlaceOrder(ctx, alice)
	require.True(t, domain.IsKind(err, domain.KindOrderCreationFailed), "got %v", err)
	assert.ErrorIs(t, err, store.ErrStockExhausted)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
	lines, err := f.store.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	_, total, err := f.orders.ListOrders(ctx, alice, store.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	pending, err := f.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	const (
		buyers = 20
		stock  = 5
	)
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", stock)
	for user := int64(1); user <= buyers; user++ {
		f.add(t, user, p.ID, 1)
	}

	var wg sync.WaitGroup
	outcomes := make([]domain.ErrorKind, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orders.PlaceOrder(ctx, int64(i+1))
			outcomes[i] = domain.KindOf(err)
		}(i)
	}
	wg.Wait()

	counts := map[domain.ErrorKind]int{}
	for _, kind := range outcomes {
		counts[kind]++
	}
	assert.Equal(t, stock, counts[""])
	assert.Equal(t, buyers-stock, counts[domain.KindInsufficientStock])
	assert.Equal(t, 0, f.stock(t, p.ID))

	pending, err := f.store.PendingEvents(ctx, buyers)
	require.NoError(t, err)
	assert.Len(t, pending, stock)
	for i, kind := range outcomes {
		lines, err := f.store.CartSnapshot(ctx, int64(i+1))
		require.NoError(t, err)
		if kind == "" {
			assert.Empty(t, lines)
		} else {
			assert.Len(t, lines, 1)
		}
	}
}

func TestPlaceOrderItemsFollowProductOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "boots", "20.00", 5)
	b := f.product(t, "raincoat", "40.00", 5)
	f.add(t, alice, b.ID, 1)
	f.add(t, alice, a.ID, 1)

	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, a.ID, *order.Items[0].ProductID)
	assert.Equal(t, b.ID, *order.Items[1].ProductID)

	_, err = f.orders.CancelOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
}

func TestOrderItemsAreSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)
	f.add(t, alice, p.ID, 2)

	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	err = store.WithTx(ctx, f.store, func(tx store.Tx) error {
		live, err := tx.GetProductForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		live.Price = money.MustParse("9.99", "USD")
		return tx.UpdateProduct(ctx, live)
	})
	require.NoError(t, err)

	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", stored.Total.StringFixed())
	assert.Equal(t, "5.00", stored.Items[0].ProductPrice.StringFixed())
}

func TestReversalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture, orderID int64) error
		reverse func(f *fixture, orderID int64) (*domain.Order, error)
		wantErr bool
	}{
		{
			name:    "cancel created",
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.CancelOrder(context.Background(), alice, id) },
		},
		{
			name:    "return created",
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.ReturnOrder(context.Background(), alice, id) },
		},
		{
			name: "cancel paid",
			prepare: func(f *fixture, id int64) error {
				_, err := f.orders.MarkPaid(context.Background(), id)
				return err
			},
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.CancelOrder(context.Background(), alice, id) },
		},
		{
			name: "return paid",
			prepare: func(f *fixture, id int64) error {
				_, err := f.orders.MarkPaid(context.Background(), id)
				return err
			},
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.ReturnOrder(context.Background(), alice, id) },
		},
		{
			name: "return cancelled",
			prepare: func(f *fixture, id int64) error {
				_, err := f.orders.CancelOrder(context.Background(), alice, id)
				return err
			},
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.ReturnOrder(context.Background(), alice, id) },
			wantErr: true,
		},
		{
			name: "cancel returned",
			prepare: func(f *fixture, id int64) error {
				_, err := f.orders.ReturnOrder(context.Background(), alice, id)
				return err
			},
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.CancelOrder(context.Background(), alice, id) },
			wantErr: true,
		},
		{
			name: "cancel twice",
			prepare: func(f *fixture, id int64) error {
				_, err := f.orders.CancelOrder(context.Background(), alice, id)
				return err
			},
			reverse: func(f *fixture, id int64) (*domain.Order, error) { return f.orders.CancelOrder(context.Background(), alice, id) },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.product(t, "umbrella", "5.00", 10)
			f.add(t, alice, p.ID, 4)
			order, err := f.orders.PlaceOrder(context.Background(), alice)
			require.NoError(t, err)
			if tt.prepare != nil {
				require.NoError(t, tt.prepare(f, order.ID))
			}
			before := f.stock(t, p.ID)

			_, err = tt.reverse(f, order.ID)
			if tt.wantErr {
				assert.True(t, domain.IsKind(err, domain.KindInvalidTransition), "got %v", err)
				assert.Equal(t, before, f.stock(t, p.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10, f.stock(t, p.ID))
		})
	}
}

func TestReversalSkipsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.product(t, "umbrella", "5.00", 10)
	gone := f.product(t, "boots", "20.00", 10)
	f.add(t, alice, kept.ID, 2)
	f.add(t, alice, gone.ID, 3)

	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, f.store, func(tx store.Tx) error { return tx.DeleteProduct(ctx, gone.ID) }))

	returned, err := f.orders.ReturnOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReturned, returned.Status)
	assert.Equal(t, 10, f.stock(t, kept.ID))
}

func TestReversalFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)
	f.add(t, alice, p.ID, 4)
	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	f.store.InjectFault("UpdateOrderStatus", errors.New("lock timeout"))
	_, err = f.orders.CancelOrder(ctx, alice, order.ID)
	require.Error(t, err)

	assert.Equal(t, 6, f.stock(t, p.ID))
	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, stored.Status)
}

func TestOrdersAreOwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)
	f.add(t, alice, p.ID, 1)
	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, bob, order.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	_, err = f.orders.CancelOrder(ctx, bob, order.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	_, err = f.orders.ReturnOrder(ctx, alice, 9999)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)
	f.add(t, alice, p.ID, 1)
	order, err := f.orders.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	paid, err := f.orders.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, paid.Status)

	_, err = f.orders.MarkPaid(ctx, order.ID)
	assert.True(t, domain.IsKind(err, domain.KindInvalidTransition))

	pending, err := f.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.EventOrderCreated, pending[0].Event.Type)
	assert.Equal(t, domain.EventOrderPaid, pending[1].Event.Type)
	assert.Equal(t, domain.OrderStatusPaid, pending[1].Event.Status)
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "umbrella", "5.00", 10)

	var ids []int64
	for i := 0; i < 3; i++ {
		f.add(t, alice, p.ID, 1)
		order, err := f.orders.PlaceOrder(ctx, alice)
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	orders, total, err := f.orders.ListOrders(ctx, alice, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[1], orders[1].ID)
	assert.Len(t, orders[0].Items, 1)
}

// TestLedgerConservesStock drives random checkouts and reversals and checks
// that stock never goes negative and that every unit is either on the shelf
// or held by an order that has not been reversed.
func TestLedgerConservesStock(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		initial := rapid.IntRange(0, 30).Draw(t, "initial")
		p := f.product(t, "umbrella", "5.00", initial)

		held := map[int64]int{}
		statuses := map[int64]domain.OrderStatus{}
		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				q := rapid.IntRange(1, 10).Draw(t, "qty")
				_, _ = f.cart.AddOrMerge(ctx, alice, cart.AddToCartRequest{ProductID: p.ID, Quantity: q})
			case 1:
				lines, _ := f.store.CartSnapshot(ctx, alice)
				order, err := f.orders.PlaceOrder(ctx, alice)
				if err == nil {
					held[order.ID] = lines[0].Quantity
					statuses[order.ID] = order.Status
				}
			case 2, 3:
				if len(held) == 0 {
					continue
				}
				ids := make([]int64, 0, len(held))
				for id := range held {
					ids = append(ids, id)
				}
				id := rapid.SampledFrom(ids).Draw(t, "order")
				before := statuses[id]
				var (
					order *domain.Order
					err   error
				)
				target := domain.OrderStatusCancelled
				if rapid.Bool().Draw(t, "return") {
					target = domain.OrderStatusReturned
					order, err = f.orders.ReturnOrder(ctx, alice, id)
				} else {
					order, err = f.orders.CancelOrder(ctx, alice, id)
				}
				if before.CanTransitionTo(target) {
					if err != nil {
						t.Fatalf("%s -> %s failed: %v", before, target, err)
					}
					statuses[id] = order.Status
				} else if !domain.IsKind(err, domain.KindInvalidTransition) {
					t.Fatalf("%s -> %s: want invalid_transition, got %v", before, target, err)
				}
			}

			stock := f.stock(t, p.ID)
			if stock < 0 {
				t.Fatalf("stock went negative: %d", stock)
			}
			outstanding := 0
			for id, q := range held {
				if !statuses[id].Terminal() {
					outstanding += q
				}
			}
			if stock+outstanding != initial {
				t.Fatalf("stock %d + outstanding %d != initial %d", stock, outstanding, initial)
			}
		}
	})
}
