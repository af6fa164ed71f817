package httpapi

import "net/http"

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, total, err := h.services.Orders.ListOrders(r.Context(), userFrom(r.Context()), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(page, total, orders))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.services.Orders.PlaceOrder(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "order")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.services.Orders.GetOrder(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "order")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.services.Orders.CancelOrder(r.Context(), userFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) returnOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "order")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.services.Orders.ReturnOrder(r.Context(), userFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// paymentCallback is the unauthenticated payment provider stub.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "order")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.services.Orders.MarkPaid(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
