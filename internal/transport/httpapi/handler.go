// Package httpapi содержит HTTP-слой ресурсов заказов и каталога поверх chi.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// OrderService — операции Order Store, которые нужны HTTP-слою.
type OrderService interface {
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, orderUUID string) (domain.Order, error)
	Create(ctx context.Context, userUUID string, lines []domain.LineRequest) (domain.Order, error)
	Update(ctx context.Context, orderUUID string, upd domain.OrderUpdate) (domain.Order, error)
	Delete(ctx context.Context, orderUUID string) error
}

// Handler обслуживает ресурсы /orders/ и /items/.
type Handler struct {
	orders OrderService
	items  domain.ItemRepository
	logger *log.Entry
}

// NewHandler конструирует обработчики с зависимостями.
func NewHandler(orders OrderService, items domain.ItemRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Handler{orders: orders, items: items, logger: logger}
}

// ListOrders обрабатывает GET /orders/.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}

	views := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, order.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// GetOrder обрабатывает GET /orders/{uuid}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// CreateOrder обрабатывает POST /orders/ с полями user и items.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeOrderPayload(r)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	if payload.itemsErr != nil {
		writeDomainError(w, h.requestLogger(r), payload.itemsErr)
		return
	}

	var lines []domain.LineRequest
	if payload.ItemsSet {
		lines = payload.Items
	}

	order, err := h.orders.Create(r.Context(), payload.User, lines)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, order.View())
}

// UpdateOrder обрабатывает PUT /orders/{uuid} и полностью заменяет позиции.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeOrderPayload(r)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}

	orderUUID := chi.URLParam(r, "uuid")
	if payload.itemsErr != nil {
		// Кривые items не должны скрывать 404 на несуществующий заказ.
		if _, err := h.orders.Get(r.Context(), orderUUID); err != nil {
			writeDomainError(w, h.requestLogger(r), err)
			return
		}
		writeDomainError(w, h.requestLogger(r), payload.itemsErr)
		return
	}

	order, err := h.orders.Update(r.Context(), orderUUID, domain.OrderUpdate{
		Items:         payload.Items,
		ItemsProvided: payload.ItemsSet,
		ChangesUUID:   payload.UUIDSet,
		ChangesUser:   payload.UserSet,
	})
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// DeleteOrder обрабатывает DELETE /orders/{uuid}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems обрабатывает GET /items/.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}

	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, item.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// GetItem обрабатывает GET /items/{uuid}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		// Для самого ресурса товара отсутствие — это 404, а не ошибка валидации заказа.
		if errors.Is(err, domain.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, item.View())
}
