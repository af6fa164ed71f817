package httpapi

import (
	"net/http"

	"rainshop/internal/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	products, total, err := h.services.Catalog.ListProducts(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(page, total, products))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.services.Catalog.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "product")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.services.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "product")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req catalog.UpdateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.services.Catalog.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", "product")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.services.Catalog.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.services.Stats.Report(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

