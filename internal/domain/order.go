package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity ограничивает количество в позиции размером колонки INTEGER.
const MaxQuantity = math.MaxInt32

// Суммы хранятся как NUMERIC(12,2): не больше 10 знаков до запятой и 2 после.
const (
	amountScale     = 2
	amountIntDigits = 10
)

var amountLimit = decimal.New(1, amountIntDigits)

// AmountFits сообщает, помещается ли сумма в NUMERIC(12,2) без округления.
func AmountFits(d decimal.Decimal) bool {
	return d.Abs().LessThan(amountLimit) && d.Equal(d.Round(amountScale))
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ItemUUID: внешний идентификатор товара каталога.
	ItemUUID string
	// Quantity: количество единиц товара.
	Quantity int64
	// Subtotal — снимок цены позиции на момент назначения: price × quantity.
	Subtotal decimal.Decimal
}

// Order агрегирует заказ пользователя и его позиции.
type Order struct {
	UUID       string
	UserUUID   string
	TotalPrice decimal.Decimal
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineRequest — позиция в том виде, в котором её прислал клиент.
type LineRequest struct {
	ItemUUID string
	Quantity int64
}

// OrderUpdate описывает изменения заказа, присланные клиентом.
type OrderUpdate struct {
	Items []LineRequest
	// ItemsProvided отличает отсутствующее поле items от пустого списка.
	ItemsProvided bool
	// ChangesUUID и ChangesUser выставляются, если клиент прислал неизменяемые поля.
	ChangesUUID bool
	ChangesUser bool
}

// NewOrderItem строит позицию и фиксирует subtotal по текущей цене товара.
func NewOrderItem(item Item, quantity int64) OrderItem {
	return OrderItem{
		ItemUUID: item.UUID,
		Quantity: quantity,
		Subtotal: item.Price.Mul(decimal.NewFromInt(quantity)),
	}
}

// TotalPrice суммирует subtotal всех позиций.
func TotalPrice(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserUUID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsEmpty)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			errs = append(errs, ErrQuantityInvalid)
		}
		if item.Subtotal.IsNegative() {
			errs = append(errs, ErrSubtotalNegative)
		}
		if !AmountFits(item.Subtotal) {
			errs = append(errs, ErrAmountOutOfRange)
		}
	}
	if !TotalPrice(o.Items).Equal(o.TotalPrice) {
		errs = append(errs, ErrTotalMismatch)
	}
	if !AmountFits(o.TotalPrice) {
		errs = append(errs, ErrAmountOutOfRange)
	}

	return errs
}

// OrderItemView — JSON-представление позиции.
type OrderItemView struct {
	UUID     string `json:"uuid"`
	Quantity int64  `json:"quantity"`
	Subtotal Amount `json:"subtotal"`
}

// OrderView — JSON-представление заказа, которое отдаёт HTTP API.
type OrderView struct {
	UUID       string          `json:"uuid"`
	TotalPrice Amount          `json:"total_price"`
	User       string          `json:"user"`
	Items      []OrderItemView `json:"items"`
}

// View сериализует заказ; позиции идут в порядке добавления.
func (o Order) View() OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemView{
			UUID:     item.ItemUUID,
			Quantity: item.Quantity,
			Subtotal: Amount(item.Subtotal),
		})
	}
	return OrderView{
		UUID:       o.UUID,
		TotalPrice: Amount(o.TotalPrice),
		User:       o.UserUUID,
		Items:      items,
	}
}
