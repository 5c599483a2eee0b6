// Package rates converts amounts between the supported currencies.
package rates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bizbank/bizbank/internal/apperr"
	"github.com/bizbank/bizbank/internal/ledger"
)

// ErrInvalidAmount is returned for amounts that cannot be expressed in minor units.
var ErrInvalidAmount = apperr.New(apperr.ErrInvalidInput, "invalid_amount", "invalid amount")

// minorDigits is the number of decimal places of every supported currency.
const minorDigits = 2

// Table holds units of each currency per one EUR.
type Table struct {
	perEUR map[ledger.Currency]decimal.Decimal
}

// Static returns the fixed rate table used until a market data feed exists.
func Static() *Table {
	return &Table{perEUR: map[ledger.Currency]decimal.Decimal{
		ledger.EUR: decimal.NewFromInt(1),
		ledger.USD: decimal.RequireFromString("1.10"),
		ledger.PLN: decimal.RequireFromString("4.30"),
		ledger.GBP: decimal.RequireFromString("0.85"),
	}}
}

// Rate returns how many units of to one unit of from buys.
func (t *Table) Rate(from, to ledger.Currency) (decimal.Decimal, error) {
	f, ok := t.perEUR[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", from)
	}
	r, ok := t.perEUR[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", to)
	}
	return r.Div(f), nil
}

// Convert converts amountMinor from one currency to another, rounding half
// away from zero to whole minor units.
func (t *Table) Convert(amountMinor int64, from, to ledger.Currency) (int64, error) {
	if from == to {
		return amountMinor, nil
	}
	rate, err := t.Rate(from, to)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromInt(amountMinor).Mul(rate).Round(0).IntPart(), nil
}

// ToMinor converts a positive decimal major-unit amount (e.g. 12.34) into
// minor units. Amounts with more precision than a cent are rejected.
func ToMinor(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	minor := amount.Shift(minorDigits)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, minorDigits)
	}
	return minor.IntPart(), nil
}
