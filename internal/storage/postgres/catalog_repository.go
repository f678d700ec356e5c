package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

type userRepository struct {
	store *Store
}

// NewUserRepository создаёт PostgreSQL-реализацию справочника пользователей.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO users (uuid, first_name, last_name, email, password)
		VALUES ($1, $2, $3, $4, $5)
	`, user.UUID, user.FirstName, user.LastName, user.Email, user.Password)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrCatalogConflict
		case isInvalidText(err):
			return domain.ErrUUIDMalformed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, uuid string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user domain.User
	err := r.store.db.QueryRowContext(ctx, `
		SELECT uuid::text, first_name, last_name, email, password
		FROM users
		WHERE uuid = $1
	`, uuid).Scan(&user.UUID, &user.FirstName, &user.LastName, &user.Email, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

type itemRepository struct {
	store *Store
}

// NewItemRepository создаёт PostgreSQL-реализацию каталога товаров.
func NewItemRepository(store *Store) domain.ItemRepository {
	return &itemRepository{store: store}
}

func (r *itemRepository) Create(ctx context.Context, item domain.Item) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO items (uuid, name, price, description, category)
		VALUES ($1, $2, $3, $4, $5)
	`, item.UUID, item.Name, item.Price, item.Description, item.Category)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrCatalogConflict
		case isInvalidText(err):
			return domain.ErrUUIDMalformed
		case isOutOfRange(err):
			return fmt.Errorf("insert item price: %w", domain.ErrAmountOutOfRange)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *itemRepository) Get(ctx context.Context, uuid string) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanItem(r.store.db.QueryRowContext(ctx, `
		SELECT uuid::text, name, price, description, category
		FROM items
		WHERE uuid = $1
	`, uuid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) List(ctx context.Context) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT uuid::text, name, price, description, category
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.UUID, &item.Name, &item.Price, &item.Description, &item.Category)
	return item, err
}

var (
	_ domain.UserRepository = (*userRepository)(nil)
	_ domain.ItemRepository = (*itemRepository)(nil)
)
