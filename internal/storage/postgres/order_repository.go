package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Суррогатные ключи (id BIGSERIAL) живут только в БД; наружу отдаётся uuid.
const selectOrdersSQL = `
	SELECT o.id, o.uuid::text, u.uuid::text, o.total_price, o.created_at, o.updated_at
	FROM orders o
	JOIN users u ON u.id = o.user_id
`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, selectOrdersSQL+` ORDER BY o.id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	index := make(map[int64]int)
	for rows.Next() {
		id, order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[id] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	// Позиции всех заказов одним запросом, чтобы не ходить в БД на каждый заказ.
	itemRows, err := r.store.db.QueryContext(ctx, `
		SELECT oi.order_id, i.uuid::text, oi.quantity, oi.subtotal
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		ORDER BY oi.order_id, oi.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			item    domain.OrderItem
		)
		if err := itemRows.Scan(&orderID, &item.ItemUUID, &item.Quantity, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		pos, ok := index[orderID]
		if !ok {
			continue
		}
		orders[pos].Items = append(orders[pos].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Get(ctx context.Context, uuid string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id, order, err := scanOrder(r.store.db.QueryRowContext(ctx, selectOrdersSQL+` WHERE o.uuid = $1`, uuid))
	if err != nil {
		return domain.Order{}, err
	}

	items, err := loadOrderItems(ctx, r.store.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		var orderID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (uuid, total_price, user_id, created_at, updated_at)
			SELECT $1, $2, u.id, $4, $5
			FROM users u
			WHERE u.uuid = $3
			RETURNING id
		`,
			order.UUID, order.TotalPrice, order.UserUUID, order.CreatedAt, order.UpdatedAt,
		).Scan(&orderID)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return domain.ErrUserNotFound
			case isUniqueViolation(err):
				return domain.ErrOrderAlreadyExists
			case isInvalidText(err):
				return domain.ErrUUIDMalformed
			case isOutOfRange(err):
				return fmt.Errorf("insert order: %w", domain.ErrAmountOutOfRange)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		return insertOrderItems(ctx, tx, orderID, order.Items)
	})
}

func (r *orderRepository) ReplaceItems(ctx context.Context, uuid string, items []domain.OrderItem, total decimal.Decimal) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		var orderID int64
		err := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET total_price = $2,
			    updated_at = $3
			WHERE uuid = $1
			RETURNING id
		`, uuid, total, time.Now().UTC()).Scan(&orderID)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows) || isInvalidText(err):
				return domain.ErrOrderNotFound
			case isOutOfRange(err):
				return fmt.Errorf("update order: %w", domain.ErrAmountOutOfRange)
			}
			return fmt.Errorf("update order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return insertOrderItems(ctx, tx, orderID, items)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return r.Get(ctx, uuid)
}

func (r *orderRepository) Delete(ctx context.Context, uuid string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// order_items удаляются каскадом (ON DELETE CASCADE).
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM orders WHERE uuid = $1`, uuid)
	if err != nil {
		if isInvalidText(err) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []domain.OrderItem) error {
	for _, item := range items {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_id, quantity, subtotal)
			SELECT $1, i.id, $3, $4
			FROM items i
			WHERE i.uuid = $2
		`, orderID, item.ItemUUID, item.Quantity, item.Subtotal)
		if err != nil {
			switch {
			case isForeignKeyViolation(err) || isInvalidText(err):
				return domain.ErrItemNotFound
			case isOutOfRange(err):
				return fmt.Errorf("insert order item %s: %w", item.ItemUUID, domain.ErrAmountOutOfRange)
			}
			return fmt.Errorf("insert order item: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for order item: %w", err)
		}
		if affected == 0 {
			return domain.ErrItemNotFound
		}
	}
	return nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrderItems(ctx context.Context, q rowQuerier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.uuid::text, oi.quantity, oi.subtotal
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ItemUUID, &item.Quantity, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (int64, domain.Order, error) {
	var (
		id    int64
		order domain.Order
	)
	err := row.Scan(&id, &order.UUID, &order.UserUUID, &order.TotalPrice, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return 0, domain.Order{}, domain.ErrOrderNotFound
		}
		return 0, domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.Items = make([]domain.OrderItem, 0)
	return id, order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
