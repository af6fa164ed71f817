package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"rainshop/internal/domain"
	"rainshop/internal/money"
)

const maxNameLength = 255

// maxAmount is the largest value a NUMERIC(10,2) column holds.
var maxAmount = decimal.RequireFromString("99999999.99")

type CreateProductRequest struct {
	Name     string      `json:"name"`
	Cost     money.Money `json:"cost"`
	Price    money.Money `json:"price"`
	Quantity int         `json:"quantity"`
}

func (r CreateProductRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return domain.ErrInvalidInput("name", "This field may not be blank.")
	}
	if len(name) > maxNameLength {
		return domain.ErrInvalidInput("name", "Ensure this field has no more than 255 characters.")
	}
	if err := validateAmount("cost", r.Cost); err != nil {
		return err
	}
	if err := validateAmount("price", r.Price); err != nil {
		return err
	}
	return validateQuantity(r.Quantity)
}

// UpdateProductRequest changes cost, price and stock. The name is fixed
// once the product exists; nil fields are left untouched.
type UpdateProductRequest struct {
	Cost     *money.Money `json:"cost"`
	Price    *money.Money `json:"price"`
	Quantity *int         `json:"quantity"`
}

func (r UpdateProductRequest) Validate() error {
	if r.Cost == nil && r.Price == nil && r.Quantity == nil {
		return domain.ErrInvalidInput("product", "Nothing to update.")
	}
	if r.Cost != nil {
		if err := validateAmount("cost", *r.Cost); err != nil {
			return err
		}
	}
	if r.Price != nil {
		if err := validateAmount("price", *r.Price); err != nil {
			return err
		}
	}
	if r.Quantity != nil {
		return validateQuantity(*r.Quantity)
	}
	return nil
}

func validateAmount(field string, m money.Money) error {
	if m.IsNegative() {
		return domain.ErrInvalidInput(field, "Ensure this value is greater than or equal to 0.")
	}
	if m.Amount.GreaterThan(maxAmount) {
		return domain.ErrInvalidInput(field, "Ensure that there are no more than 10 digits in total.")
	}
	return nil
}

func validateQuantity(q int) error {
	if q < 0 {
		return domain.ErrInvalidInput("quantity", "Ensure this value is greater than or equal to 0.")
	}
	return nil
}
