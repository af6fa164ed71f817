package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusCreated, OrderStatusPaid, true},
		{OrderStatusCreated, OrderStatusCancelled, true},
		{OrderStatusCreated, OrderStatusReturned, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusReturned, true},
		{OrderStatusPaid, OrderStatusPaid, false},
		{OrderStatusPaid, OrderStatusCreated, false},
		{OrderStatusCancelled, OrderStatusReturned, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusReturned, OrderStatusCancelled, false},
		{OrderStatusReturned, OrderStatusReturned, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusReturned.Terminal())
	assert.False(t, OrderStatusPaid.Terminal())
	assert.False(t, OrderStatus("PAYED").Valid())
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("checkout: %w", ErrInsufficientStock(7, 3))

	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindInsufficientStock}))
	assert.False(t, errors.Is(err, &Error{Kind: KindEmptyCart}))

	var de *Error
	assert.True(t, errors.As(err, &de))
	if assert.NotNil(t, de.Remaining) {
		assert.Equal(t, 3, *de.Remaining)
	}
	assert.Contains(t, de.Detail, "Remaining at the moment: 3")

	cause := errors.New("unique violation")
	wrapped := ErrOrderCreationFailed(cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}
