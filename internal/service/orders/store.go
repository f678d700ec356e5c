// Package orders реализует Order Store: создание, замену позиций и удаление
// заказов поверх репозиториев заказов и справочников.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// Store — сервис заказов. Безопасен для конкурентного использования,
// если безопасны переданные репозитории.
type Store struct {
	orders domain.OrderRepository
	users  domain.UserRepository
	items  domain.ItemRepository

	outbox  domain.OutboxRepository
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithOutbox включает запись событий заказа в transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Store) {
		s.outbox = repo
	}
}

// WithMetrics подключает Prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore конструирует Order Store.
func NewStore(orders domain.OrderRepository, users domain.UserRepository, items domain.ItemRepository, opts ...Option) *Store {
	s := &Store{
		orders: orders,
		users:  users,
		items:  items,
		logger: log.New().WithField("component", "order-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List возвращает все заказы в порядке создания.
func (s *Store) List(ctx context.Context) ([]domain.Order, error) {
	defer s.observe(metrics.OperationList, s.now())

	orders, err := s.orders.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to list orders")
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get возвращает заказ по uuid.
func (s *Store) Get(ctx context.Context, orderUUID string) (domain.Order, error) {
	defer s.observe(metrics.OperationGet, s.now())
	orderUUID = canonicalUUID(orderUUID)

	order, err := s.orders.Get(ctx, orderUUID)
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationGet, orderUUID, err)
	}
	return order, nil
}

// Create создаёт заказ пользователя userUUID из пар [item_uuid, quantity].
// lines == nil означает, что поле items не передано вовсе.
func (s *Store) Create(ctx context.Context, userUUID string, lines []domain.LineRequest) (domain.Order, error) {
	defer s.observe(metrics.OperationCreate, s.now())

	if userUUID == "" {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", domain.ErrUserRequired)
	}
	if lines == nil {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", domain.ErrItemsRequired)
	}
	if len(lines) == 0 {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", domain.ErrItemsEmpty)
	}
	parsedUser, err := uuid.Parse(userUUID)
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", fmt.Errorf("user: %w", domain.ErrUUIDMalformed))
	}
	// Верхний регистр, {braces} и urn:uuid: приводим к каноническому виду.
	userUUID = parsedUser.String()
	if _, err := s.users.Get(ctx, userUUID); err != nil {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", err)
	}

	items, err := s.resolveLines(ctx, lines)
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", err)
	}

	now := s.now()
	order := domain.Order{
		UUID:       uuid.NewString(),
		UserUUID:   userUUID,
		TotalPrice: domain.TotalPrice(items),
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, s.fail(metrics.OperationCreate, "", errors.Join(errs...))
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, s.fail(metrics.OperationCreate, order.UUID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_uuid":  order.UUID,
		"user_uuid":   order.UserUUID,
		"items":       len(order.Items),
		"total_price": order.TotalPrice.String(),
	}).Info("order created")
	if s.metrics != nil {
		s.metrics.RecordCreated()
	}
	s.enqueueEvent(domain.EventOrderCreated, order)

	return order, nil
}

// Update применяет изменения к заказу. Позиции заменяются целиком, total пересчитывается.
// Сначала проверяется существование заказа, затем неизменяемые поля и позиции.
func (s *Store) Update(ctx context.Context, orderUUID string, upd domain.OrderUpdate) (domain.Order, error) {
	defer s.observe(metrics.OperationUpdate, s.now())
	orderUUID = canonicalUUID(orderUUID)

	current, err := s.orders.Get(ctx, orderUUID)
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationUpdate, orderUUID, err)
	}

	switch {
	case upd.ChangesUUID:
		return domain.Order{}, s.fail(metrics.OperationUpdate, orderUUID, domain.ErrUUIDImmutable)
	case upd.ChangesUser:
		return domain.Order{}, s.fail(metrics.OperationUpdate, orderUUID, domain.ErrUserImmutable)
	case !upd.ItemsProvided:
		return current, nil
	}

	items, err := s.resolveLines(ctx, upd.Items)
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationUpdate, orderUUID, err)
	}

	updated, err := s.orders.ReplaceItems(ctx, orderUUID, items, domain.TotalPrice(items))
	if err != nil {
		return domain.Order{}, s.fail(metrics.OperationUpdate, orderUUID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_uuid":  updated.UUID,
		"items":       len(updated.Items),
		"total_price": updated.TotalPrice.String(),
	}).Info("order items replaced")
	if s.metrics != nil {
		s.metrics.RecordUpdated()
	}
	s.enqueueEvent(domain.EventOrderUpdated, updated)

	return updated, nil
}

// Delete удаляет заказ вместе с позициями.
func (s *Store) Delete(ctx context.Context, orderUUID string) error {
	defer s.observe(metrics.OperationDelete, s.now())
	orderUUID = canonicalUUID(orderUUID)

	// Заказ читаем заранее, чтобы событие удаления несло владельца.
	order, err := s.orders.Get(ctx, orderUUID)
	if err != nil {
		return s.fail(metrics.OperationDelete, orderUUID, err)
	}
	if err := s.orders.Delete(ctx, orderUUID); err != nil {
		return s.fail(metrics.OperationDelete, orderUUID, err)
	}

	s.logger.WithField("order_uuid", orderUUID).Info("order deleted")
	if s.metrics != nil {
		s.metrics.RecordDeleted()
	}
	order.Items = nil
	s.enqueueEvent(domain.EventOrderDeleted, order)

	return nil
}

// resolveLines проверяет пары [item_uuid, quantity] и превращает их в позиции
// по текущим ценам каталога. Одинаковые товары остаются отдельными позициями.
func (s *Store) resolveLines(ctx context.Context, lines []domain.LineRequest) ([]domain.OrderItem, error) {
	if len(lines) == 0 {
		return nil, domain.ErrItemsEmpty
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for idx, line := range lines {
		if line.Quantity <= 0 || line.Quantity > domain.MaxQuantity {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrQuantityInvalid)
		}
		parsed, err := uuid.Parse(line.ItemUUID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrUUIDMalformed)
		}

		item, err := s.items.Get(ctx, parsed.String())
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, err)
		}
		orderItem := domain.NewOrderItem(item, line.Quantity)
		if !domain.AmountFits(orderItem.Subtotal) {
			return nil, fmt.Errorf("items[%d] subtotal %s: %w", idx, orderItem.Subtotal, domain.ErrAmountOutOfRange)
		}
		items = append(items, orderItem)
	}
	if total := domain.TotalPrice(items); !domain.AmountFits(total) {
		return nil, fmt.Errorf("total %s: %w", total, domain.ErrAmountOutOfRange)
	}
	return items, nil
}

// canonicalUUID приводит корректный uuid к нижнему регистру без скобок и префикса.
// Некорректная строка возвращается как есть: репозиторий ответит ErrOrderNotFound.
func canonicalUUID(raw string) string {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return raw
	}
	return parsed.String()
}

// enqueueEvent пишет событие в outbox. Ошибка не откатывает уже сохранённый заказ.
func (s *Store) enqueueEvent(eventType string, order domain.Order) {
	if s.outbox == nil {
		return
	}

	msg, err := domain.NewOrderEventMessage(eventType, order, s.now())
	if err == nil {
		_, err = s.outbox.Enqueue(msg)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_uuid": order.UUID,
			"event_type": eventType,
		}).Warn("failed to enqueue order event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEnqueued()
	}
}

// fail классифицирует ошибку: валидация и not found пишутся в метрики и debug-лог,
// всё остальное считается внутренней ошибкой.
func (s *Store) fail(operation, orderUUID string, err error) error {
	entry := s.logger.WithError(err).WithField("operation", operation)
	if orderUUID != "" {
		entry = entry.WithField("order_uuid", orderUUID)
	}

	switch {
	case domain.IsValidation(err):
		if s.metrics != nil {
			s.metrics.RecordValidationFailure(operation, validationReason(err))
		}
		entry.Debug("order request rejected")
	case domain.IsNotFound(err):
		entry.Debug("order not found")
	default:
		entry.Error("order store operation failed")
		return fmt.Errorf("%s order: %w", operation, err)
	}
	return err
}

func (s *Store) observe(operation string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDuration(operation, s.now().Sub(started))
	}
}

var validationReasons = []struct {
	err    error
	reason string
}{
	{domain.ErrUserRequired, "user_required"},
	{domain.ErrItemsRequired, "items_required"},
	{domain.ErrItemsEmpty, "items_empty"},
	{domain.ErrItemsMalformed, "items_malformed"},
	{domain.ErrQuantityInvalid, "quantity_invalid"},
	{domain.ErrUUIDMalformed, "uuid_malformed"},
	{domain.ErrUserNotFound, "user_not_found"},
	{domain.ErrItemNotFound, "item_not_found"},
	{domain.ErrUUIDImmutable, "uuid_immutable"},
	{domain.ErrUserImmutable, "user_immutable"},
}

func validationReason(err error) string {
	for _, r := range validationReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
