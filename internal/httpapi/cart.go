package httpapi

import (
	"net/http"
	"time"

	"rainshop/internal/cart"
	"rainshop/internal/domain"
	"rainshop/internal/money"
)

// CartLineView renders a cart line with its live availability.
type CartLineView struct {
	ID                    int64       `json:"id"`
	ProductID             int64       `json:"product_id"`
	ProductName           string      `json:"product_name"`
	Price                 money.Money `json:"price"`
	Quantity              int         `json:"quantity"`
	MaxQuantity           int         `json:"max_quantity"`
	IsAvailableAsSelected bool        `json:"is_available_as_selected"`
	TotalPrice            money.Money `json:"total_price"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

func newCartLineView(line *domain.CartLine) CartLineView {
	v := CartLineView{
		ID:                    line.ID,
		ProductID:             line.ProductID,
		Quantity:              line.Quantity,
		MaxQuantity:           line.MaxQuantity(),
		IsAvailableAsSelected: line.IsAvailableAsSelected(),
		TotalPrice:            line.TotalPrice(),
		CreatedAt:             line.CreatedAt,
		UpdatedAt:             line.UpdatedAt,
	}
	if line.Product != nil {
		v.ProductName = line.Product.Name
		v.Price = line.Product.Price
	}
	return v
}

func (h *Handler) listCart(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines, total, err := h.services.Cart.ListCart(r.Context(), userFrom(r.Context()), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]CartLineView, 0, len(lines))
	for i := range lines {
		views = append(views, newCartLineView(&lines[i]))
	}
	writeJSON(w, http.StatusOK, newPage(page, total, views))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cart.AddToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	line, err := h.services.Cart.AddOrMerge(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCartLineView(line))
}

func (h *Handler) getCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "cart line")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	line, err := h.services.Cart.GetCartLine(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartLineView(line))
}

func (h *Handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "cart line")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cart.UpdateCartLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	line, err := h.services.Cart.UpdateCartLine(r.Context(), userFrom(r.Context()), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartLineView(line))
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "cart line")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.services.Cart.RemoveCartLine(r.Context(), userFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
