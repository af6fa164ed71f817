package domain

import (
	"time"

	"rainshop/internal/money"
)

// Product is an inventory record. Quantity is the stock on hand and never
// goes below zero.
type Product struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Cost      money.Money `json:"cost"`
	Price     money.Money `json:"price"`
	Quantity  int         `json:"quantity"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CanSupply reports whether the product has at least quantity units in stock.
func (p *Product) CanSupply(quantity int) bool {
	return p.Quantity >= quantity
}
