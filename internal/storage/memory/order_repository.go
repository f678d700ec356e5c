package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// orderRecord хранит заказ и порядковый номер создания, заменяющий surrogate key.
type orderRecord struct {
	seq   uint64
	order domain.Order
}

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	nextSeq uint64
	items   map[string]orderRecord
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]orderRecord),
	}
}

// Create сохраняет новый заказ, если uuid ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.UUID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	r.nextSeq++
	r.items[order.UUID] = orderRecord{seq: r.nextSeq, order: cloneOrder(order)}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, uuid string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[uuid]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(rec.order), nil
}

// List возвращает заказы в порядке создания.
func (r *orderRepositoryInMemory) List(_ context.Context) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]orderRecord, 0, len(r.items))
	for _, rec := range r.items {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	result := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		result = append(result, cloneOrder(rec.order))
	}
	return result, nil
}

// ReplaceItems целиком заменяет позиции заказа под одной блокировкой.
func (r *orderRepositoryInMemory) ReplaceItems(_ context.Context, uuid string, items []domain.OrderItem, total decimal.Decimal) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[uuid]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	rec.order.Items = cloneItems(items)
	rec.order.TotalPrice = total
	rec.order.UpdatedAt = time.Now().UTC()
	r.items[uuid] = rec

	return cloneOrder(rec.order), nil
}

// Delete удаляет заказ; позиции принадлежат заказу и исчезают вместе с ним.
func (r *orderRepositoryInMemory) Delete(_ context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[uuid]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, uuid)
	return nil
}

// cloneOrder защищает хранилище от мутаций снаружи через общий slice позиций.
func cloneOrder(order domain.Order) domain.Order {
	order.Items = cloneItems(order.Items)
	return order
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	result := make([]domain.OrderItem, len(items))
	copy(result, items)
	return result
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
