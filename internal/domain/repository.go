package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// List возвращает все заказы в порядке создания вместе с позициями.
	List(ctx context.Context) ([]Order, error)
	// Get возвращает заказ по uuid или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, uuid string) (Order, error)
	// Create атомарно сохраняет заказ и все его позиции.
	Create(ctx context.Context, order Order) error
	// ReplaceItems атомарно заменяет набор позиций заказа и пересохраняет total.
	ReplaceItems(ctx context.Context, uuid string, items []OrderItem, total decimal.Decimal) (Order, error)
	// Delete удаляет заказ вместе с позициями или возвращает ErrOrderNotFound.
	Delete(ctx context.Context, uuid string) error
}

// UserRepository хранит справочник пользователей.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	// Get возвращает ErrUserNotFound, если пользователя нет.
	Get(ctx context.Context, uuid string) (User, error)
}

// ItemRepository хранит каталог товаров.
type ItemRepository interface {
	Create(ctx context.Context, item Item) error
	// Get возвращает ErrItemNotFound, если товара нет.
	Get(ctx context.Context, uuid string) (Item, error)
	List(ctx context.Context) ([]Item, error)
}
