// Package httpapi exposes the shop services over a JSON REST API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rainshop/internal/cart"
	"rainshop/internal/catalog"
	"rainshop/internal/config"
	"rainshop/internal/orders"
	"rainshop/internal/platform/observability"
	"rainshop/internal/stats"
)

const requestTimeout = 30 * time.Second

// Services groups the business services served by the API.
type Services struct {
	Catalog *catalog.Service
	Cart    *cart.Service
	Orders  *orders.Service
	Stats   *stats.Service
}

type Handler struct {
	services Services
	tokens   TokenResolver
	logger   observability.Logger
	pageSize int
}

func NewHandler(services Services, tokens TokenResolver, logger observability.Logger, pageSize int) *Handler {
	return &Handler{services: services, tokens: tokens, logger: logger, pageSize: pageSize}
}

// Routes builds the traced router. Every API route lives under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/stats", h.productStats)
			r.Get("/{id}", h.getProduct)
			r.Group(func(r chi.Router) {
				r.Use(h.requireUser)
				r.Post("/", h.createProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/", h.listCart)
			r.Post("/", h.addToCart)
			r.Get("/{id}", h.getCartLine)
			r.Put("/{id}", h.updateCartLine)
			r.Delete("/{id}", h.removeCartLine)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{id}/payment-callback", h.paymentCallback)
			r.Group(func(r chi.Router) {
				r.Use(h.requireUser)
				r.Get("/", h.listOrders)
				r.Post("/", h.placeOrder)
				r.Get("/{id}", h.getOrder)
				r.Delete("/{id}", h.cancelOrder)
				r.Delete("/{id}/return", h.returnOrder)
			})
		})
	})

	return otelhttp.NewHandler(r, config.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
