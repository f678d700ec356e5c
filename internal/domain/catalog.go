package domain

import "github.com/shopspring/decimal"

// User — владелец заказов. Создаётся вне Order Store и никогда им не изменяется.
type User struct {
	UUID      string
	FirstName string
	LastName  string
	Email     string
	// Password хранится как непрозрачный credential.
	Password string
}

// Item — товар каталога, используемый для расчёта цены позиций.
type Item struct {
	UUID        string
	Name        string
	Price       decimal.Decimal
	Description string
	Category    string
}

// ItemView — JSON-представление товара каталога.
type ItemView struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Price       Amount `json:"price"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// View возвращает JSON-представление товара.
func (i Item) View() ItemView {
	return ItemView{
		UUID:        i.UUID,
		Name:        i.Name,
		Price:       Amount(i.Price),
		Description: i.Description,
		Category:    i.Category,
	}
}
