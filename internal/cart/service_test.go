package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"rainshop/internal/domain"
	"rainshop/internal/money"
	"rainshop/internal/store"
	"rainshop/internal/store/memory"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

// fataler is satisfied by *testing.T and *rapid.T.
type fataler interface {
	Fatalf(format string, args ...any)
}

func newTestService(t fataler) (*Service, *memory.Store) {
	st := memory.New()
	return NewService(st, zap.NewNop(), noop.NewTracerProvider().Tracer("test")), st
}

func addProduct(t fataler, st *memory.Store, qty int) *domain.Product {
	p := &domain.Product{
		Name:     "umbrella",
		Cost:     money.MustParse("2.00", "USD"),
		Price:    money.MustParse("5.00", "USD"),
		Quantity: qty,
	}
	err := store.WithTx(context.Background(), st, func(tx store.Tx) error {
		return tx.InsertProduct(context.Background(), p)
	})
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return p
}

func TestAddOrMergeMergesQuantities(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := addProduct(t, st, 10)

	line, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)

	merged, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, line.ID, merged.ID)
	assert.Equal(t, 7, merged.Quantity)
	assert.Equal(t, "35.00", merged.TotalPrice().StringFixed())

	lines, total, err := svc.ListCart(ctx, alice, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 7, lines[0].Quantity)
}

func TestAddOrMergeChecksCombinedQuantityAgainstStock(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := addProduct(t, st, 5)

	_, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 2})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindInsufficientStock, de.Kind)
	require.NotNil(t, de.Remaining)
	assert.Equal(t, 5, *de.Remaining)

	line, err := st.CartSnapshot(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 4, line[0].Quantity)
}

func TestAddOrMergeRejectsCombinedAboveLineLimit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := addProduct(t, st, 5000)

	_, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 999})
	require.NoError(t, err)
	_, err = svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 1})
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestAddOrMergeUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddOrMerge(context.Background(), alice, AddToCartRequest{ProductID: 42, Quantity: 1})
	assert.True(t, domain.IsKind(err, domain.KindProductNotFound))
}

func TestAddToCartRequestValidate(t *testing.T) {
	tests := []struct {
		req   AddToCartRequest
		field string
	}{
		{AddToCartRequest{ProductID: 0, Quantity: 1}, "product_id"},
		{AddToCartRequest{ProductID: 1, Quantity: 0}, "quantity"},
		{AddToCartRequest{ProductID: 1, Quantity: 1000}, "quantity"},
		{AddToCartRequest{ProductID: 1, Quantity: 999}, ""},
	}
	for _, tt := range tests {
		err := tt.req.Validate()
		if tt.field == "" {
			assert.NoError(t, err)
			continue
		}
		var de *domain.Error
		if assert.ErrorAs(t, err, &de) {
			assert.Equal(t, tt.field, de.Field)
		}
	}
}

func TestUpdateCartLineSkipsStockCheck(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := addProduct(t, st, 5)

	line, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	updated, err := svc.UpdateCartLine(ctx, alice, line.ID, UpdateCartLineRequest{Quantity: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Quantity)
	assert.False(t, updated.IsAvailableAsSelected())
	assert.Equal(t, 5, updated.MaxQuantity())

	_, err = svc.UpdateCartLine(ctx, alice, line.ID, UpdateCartLineRequest{Quantity: 0})
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestCartLinesAreOwnerScoped(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := addProduct(t, st, 5)

	line, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.GetCartLine(ctx, bob, line.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	_, err = svc.UpdateCartLine(ctx, bob, line.ID, UpdateCartLineRequest{Quantity: 2})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.True(t, domain.IsKind(svc.RemoveCartLine(ctx, bob, line.ID), domain.KindNotFound))

	require.NoError(t, svc.RemoveCartLine(ctx, alice, line.ID))
	_, err = svc.GetCartLine(ctx, alice, line.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestAddOrMergeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc, st := newTestService(t)
		ctx := context.Background()
		stock := rapid.IntRange(0, 2000).Draw(t, "stock")
		p := addProduct(t, st, stock)

		held := 0
		for _, q := range rapid.SliceOfN(rapid.IntRange(1, 999), 1, 6).Draw(t, "adds") {
			line, err := svc.AddOrMerge(ctx, alice, AddToCartRequest{ProductID: p.ID, Quantity: q})
			switch {
			case held+q > domain.MaxCartQuantity:
				if !domain.IsKind(err, domain.KindInvalidInput) {
					t.Fatalf("want invalid_input for %d+%d, got %v", held, q, err)
				}
			case held+q > stock:
				if !domain.IsKind(err, domain.KindInsufficientStock) {
					t.Fatalf("want insufficient_stock for %d+%d>%d, got %v", held, q, stock, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				held += q
				if line.Quantity != held {
					t.Fatalf("line quantity %d, want %d", line.Quantity, held)
				}
			}
		}

		lines, err := st.CartSnapshot(ctx, alice)
		if err != nil {
			t.Fatal(err)
		}
		if held == 0 {
			if len(lines) != 0 {
				t.Fatalf("expected empty cart, got %d lines", len(lines))
			}
			return
		}
		if len(lines) != 1 || lines[0].Quantity != held {
			t.Fatalf("expected one line with %d, got %+v", held, lines)
		}
	})
}
