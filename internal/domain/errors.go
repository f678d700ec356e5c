package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — базовый вид ошибок входных данных (HTTP 400).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — базовый вид ошибок отсутствующего заказа (HTTP 404).
	ErrNotFound = errors.New("not found")
)

var (
	// Ошибка отсутствующего владельца заказа.
	ErrUserRequired = fmt.Errorf("%w: user is required", ErrValidation)
	// Ошибка отсутствующего поля items.
	ErrItemsRequired = fmt.Errorf("%w: items are required", ErrValidation)
	// Ошибка пустого списка позиций.
	ErrItemsEmpty = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	// Ошибка, если items не является списком пар [item_uuid, quantity].
	ErrItemsMalformed = fmt.Errorf("%w: items must be a list of [item_uuid, quantity] pairs", ErrValidation)
	// Ошибка при некорректном количестве товара (<= 0 или не целое).
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	// Ошибка некорректного формата UUID во входных данных.
	ErrUUIDMalformed = fmt.Errorf("%w: malformed uuid", ErrValidation)
	// ErrUserNotFound — владелец заказа не существует. Для заказа это ошибка валидации.
	ErrUserNotFound = fmt.Errorf("%w: user does not exist", ErrValidation)
	// ErrItemNotFound — позиция ссылается на несуществующий товар.
	ErrItemNotFound = fmt.Errorf("%w: item does not exist", ErrValidation)
	// Попытка изменить uuid заказа.
	ErrUUIDImmutable = fmt.Errorf("%w: order uuid cannot be changed", ErrValidation)
	// Попытка сменить владельца заказа.
	ErrUserImmutable = fmt.Errorf("%w: order user cannot be changed", ErrValidation)
	// Сумма заказа не совпадает с суммой позиций.
	ErrTotalMismatch = fmt.Errorf("%w: order total does not match items sum", ErrValidation)
	// Отрицательная сумма позиции.
	ErrSubtotalNegative = fmt.Errorf("%w: item subtotal must be non-negative", ErrValidation)
	// Сумма позиции или заказа не помещается в NUMERIC(12,2).
	ErrAmountOutOfRange = fmt.Errorf("%w: amount is out of range", ErrValidation)

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrOrderAlreadyExists — заказ с таким uuid уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrCatalogConflict — пользователь или товар с таким uuid/email уже существует.
	ErrCatalogConflict = errors.New("catalog record already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, что целевой заказ не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
