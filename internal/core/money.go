// Package core defines the domain types shared by the ledger, analytics, and
// credential components: money as integer cents, calendar dates, expense and
// user records, and the sentinel errors of the operation taxonomy.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount in integer cents. Amounts are stored
// and summed as cents so repeated aggregation never accumulates float drift.
type Money struct {
	Cents int64
}

var hundred = decimal.NewFromInt(100)

// MoneyFromAmount converts a decimal amount (e.g. 12.34 from a JSON body) to
// cents with half-up rounding on sub-cent digits. Non-positive amounts are
// rejected with ErrInvalidAmount.
func MoneyFromAmount(amount float64) (Money, error) {
	cents := decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
	if cents <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents}, nil
}

// Amount returns the two-decimal representation used in API output.
func (m Money) Amount() float64 {
	f, _ := decimal.New(m.Cents, -2).Float64()
	return f
}

// StringFixed renders the amount with exactly two decimals, e.g. "600.00".
func (m Money) StringFixed() string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

// Validate rejects non-positive amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
