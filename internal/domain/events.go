package domain

import (
	"time"

	"github.com/google/uuid"

	"rainshop/internal/money"
)

// Order event types written to the outbox.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
	EventOrderReturned  = "order.returned"
)

// OrderEvent is published to downstream consumers whenever the ledger changes.
type OrderEvent struct {
	ID         string      `json:"event_id"`
	Type       string      `json:"event_type"`
	OrderID    int64       `json:"order_id"`
	UserID     int64       `json:"user_id"`
	Status     OrderStatus `json:"status"`
	Total      money.Money `json:"order_price"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewOrderEvent builds an event describing the current state of order.
func NewOrderEvent(eventType string, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		OccurredAt: at,
	}
}

// PaymentCompletedEvent is consumed from the payment provider topic.
type PaymentCompletedEvent struct {
	OrderID int64 `json:"order_id"`
}

// OutboxEntry is an order event waiting to be relayed to the broker.
type OutboxEntry struct {
	ID    int64
	Event OrderEvent
}
