package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/store"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

// PageResponse is the envelope of every paginated listing.
type PageResponse[T any] struct {
	Count   int `json:"count"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
	Results []T `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput,
		domain.KindEmptyCart,
		domain.KindInsufficientStock,
		domain.KindOrderCreationFailed,
		domain.KindInvalidTransition:
		return http.StatusBadRequest
	case domain.KindProductNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError renders domain errors with their kind. Anything else is logged
// and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error.",
		})
		return
	}

	writeJSON(w, statusFor(de.Kind), ErrorResponse{
		Error:     string(de.Kind),
		Field:     de.Field,
		Message:   de.Detail,
		Remaining: de.Remaining,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput("body", "Invalid JSON body.")
	}
	return nil
}

// idParam reads a positive integer path parameter. Anything else cannot
// name a resource and is reported as not found.
func idParam(r *http.Request, name, resource string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, domain.ErrNotFound(resource)
	}
	return id, nil
}

// maxPageFactor caps a requested limit at this multiple of the page size.
const maxPageFactor = 10

// pageParams reads limit and offset. Limits above the cap are clamped.
func (h *Handler) pageParams(r *http.Request) (store.Page, error) {
	page := store.Page{Limit: h.pageSize}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return page, domain.ErrInvalidInput("limit", "Ensure this value is a positive integer.")
		}
		page.Limit = min(limit, h.pageSize*maxPageFactor)
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, domain.ErrInvalidInput("offset", "Ensure this value is a non-negative integer.")
		}
		page.Offset = offset
	}
	return page, nil
}

func newPage[T any](page store.Page, total int, results []T) PageResponse[T] {
	if results == nil {
		results = []T{}
	}
	return PageResponse[T]{Count: total, Limit: page.Limit, Offset: page.Offset, Results: results}
}
