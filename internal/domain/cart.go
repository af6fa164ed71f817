package domain

import (
	"time"

	"rainshop/internal/money"
)

// Cart line quantity bounds.
const (
	MinCartQuantity = 1
	MaxCartQuantity = 999
)

// CartLine is a pending (user, product, quantity) selection. A user holds at
// most one line per product.
type CartLine struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Product is the live product row joined on read. It is nil for writes.
	Product *Product `json:"-"`
}

// IsAvailableAsSelected reports whether live stock covers the selected quantity.
// It is a view-only flag; nothing is reserved.
func (l *CartLine) IsAvailableAsSelected() bool {
	return l.Product != nil && l.Product.Quantity >= l.Quantity
}

// MaxQuantity is the live stock of the referenced product.
func (l *CartLine) MaxQuantity() int {
	if l.Product == nil {
		return 0
	}
	return l.Product.Quantity
}

// TotalPrice is the live price times the selected quantity.
func (l *CartLine) TotalPrice() money.Money {
	if l.Product == nil {
		return money.Zero(money.DefaultCurrency)
	}
	return l.Product.Price.Mul(l.Quantity)
}
