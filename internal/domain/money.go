package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount сериализует денежную сумму как JSON-число, а не строку.
type Amount decimal.Decimal

// Decimal возвращает исходное значение.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.Decimal(a)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	*a = Amount(d)
	return nil
}
