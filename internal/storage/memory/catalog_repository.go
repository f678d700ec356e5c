package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

type userRepositoryInMemory struct {
	mu      sync.RWMutex
	byUUID  map[string]domain.User
	byEmail map[string]string
}

// NewUserRepository создаёт in-memory справочник пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		byUUID:  make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

// Create добавляет пользователя; uuid и email должны быть уникальны.
func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUUID[user.UUID]; exists {
		return domain.ErrCatalogConflict
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return domain.ErrCatalogConflict
	}
	r.byUUID[user.UUID] = user
	r.byEmail[user.Email] = user.UUID
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, uuid string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byUUID[uuid]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

type itemRepositoryInMemory struct {
	mu    sync.RWMutex
	order []string
	items map[string]domain.Item
}

// NewItemRepository создаёт in-memory каталог товаров.
func NewItemRepository() domain.ItemRepository {
	return &itemRepositoryInMemory{items: make(map[string]domain.Item)}
}

func (r *itemRepositoryInMemory) Create(_ context.Context, item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.UUID]; exists {
		return domain.ErrCatalogConflict
	}
	r.items[item.UUID] = item
	r.order = append(r.order, item.UUID)
	return nil
}

func (r *itemRepositoryInMemory) Get(_ context.Context, uuid string) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[uuid]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

// List возвращает товары в порядке добавления.
func (r *itemRepositoryInMemory) List(_ context.Context) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Item, 0, len(r.order))
	for _, uuid := range r.order {
		result = append(result, r.items[uuid])
	}
	return result, nil
}

var (
	_ domain.UserRepository = (*userRepositoryInMemory)(nil)
	_ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
)
