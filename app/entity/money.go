package entity

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in a single currency. Amounts are exact decimals so
// fractional cents never round away during projection.
type Money struct {
	Currency string
	Value    decimal.Decimal
}

func NewMoney(currency string, value decimal.Decimal) Money {
	return Money{Currency: currency, Value: value}
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Value.Equal(other.Value)
}

func (m Money) String() string {
	return m.Value.String() + " " + m.Currency
}
