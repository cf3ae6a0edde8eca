package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MaxAmount is the largest amount a NUMERIC(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// Times returns the price of qty units.
func (m Money) Times(qty int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(qty))),
		Currency: m.Currency,
	}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s != %s", m.Currency, other.Currency)
	}

	return Money{
		Amount:   m.Amount.Add(other.Amount),
		Currency: m.Currency,
	}, nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) Validate() error {
	if m.Currency == (currency.Unit{}) {
		return errors.New("currency is empty")
	}

	if m.Amount.IsNegative() {
		return errors.New("amount is negative")
	}

	if !m.Amount.Equal(m.Amount.Round(2)) {
		return fmt.Errorf("amount %s has more than 2 decimal places", m.Amount)
	}

	if m.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("amount %s exceeds %s", m.Amount, MaxAmount)
	}

	return nil
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency.String()
}

func ZeroMoney(unit currency.Unit) Money {
	return Money{Amount: decimal.Zero, Currency: unit}
}
