package cart

import (
	"fmt"

	"rainshop/internal/domain"
)

// AddToCartRequest adds quantity units of a product to the caller's cart,
// merging with an existing line for the same product.
type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (r AddToCartRequest) Validate() error {
	if r.ProductID < 1 {
		return domain.ErrInvalidInput("product_id", "Ensure this value is greater than or equal to 1.")
	}
	return validateQuantity(r.Quantity)
}

type UpdateCartLineRequest struct {
	Quantity int `json:"quantity"`
}

func (r UpdateCartLineRequest) Validate() error {
	return validateQuantity(r.Quantity)
}

func validateQuantity(q int) error {
	if q < domain.MinCartQuantity {
		return domain.ErrInvalidInput("quantity",
			fmt.Sprintf("Ensure this value is greater than or equal to %d.", domain.MinCartQuantity))
	}
	if q > domain.MaxCartQuantity {
		return domain.ErrInvalidInput("quantity",
			fmt.Sprintf("Ensure this value is less than or equal to %d.", domain.MaxCartQuantity))
	}
	return nil
}
