package domain

import (
	"time"

	"rainshop/internal/money"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusReturned  OrderStatus = "RETURNED"
)

// orderTransitions lists the states each status may move to. CANCELLED and
// RETURNED are terminal, so neither is reachable from the other.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated: {OrderStatusPaid, OrderStatusCancelled, OrderStatusReturned},
	OrderStatusPaid:    {OrderStatusCancelled, OrderStatusReturned},
}

// Valid reports whether s is one of the declared statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is a placed order. Items and Total are fixed at creation; only Status
// changes afterwards.
type Order struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Total     money.Money `json:"order_price"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderItem snapshots a product at purchase time. ProductID becomes nil when
// the product is deleted later.
type OrderItem struct {
	ID           int64       `json:"id"`
	OrderID      int64       `json:"order_id"`
	ProductID    *int64      `json:"product_id"`
	ProductName  string      `json:"product_name"`
	ProductPrice money.Money `json:"product_price"`
	LineTotal    money.Money `json:"product_final_price"`
	Quantity     int         `json:"quantity"`
	CreatedAt    time.Time   `json:"created_at"`
}
