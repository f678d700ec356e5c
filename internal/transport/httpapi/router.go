package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// NewRouter собирает chi-роутер API. m может быть nil.
func NewRouter(h *Handler, m *metrics.HTTPMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.logger, m))
	r.Use(middleware.Recoverer)
	r.Use(limitBody)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/{uuid}", h.GetOrder)
		r.Put("/{uuid}", h.UpdateOrder)
		r.Delete("/{uuid}", h.DeleteOrder)
	})
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.ListItems)
		r.Get("/{uuid}", h.GetItem)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
