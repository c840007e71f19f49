// Package money models the signed 128-bit fixed-denomination values used for
// claim amounts, fees and balances.
package money

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotInteger is returned when a value carries a fractional part.
	ErrNotInteger = errors.New("money: amount must be an integer")
	// ErrOutOfRange is returned when a value does not fit in 128 signed bits.
	ErrOutOfRange = errors.New("money: amount out of 128-bit range")
)

var (
	maxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)
	minAmount = decimal.NewFromBigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)
)

// Amount is an integer number of the smallest unit of a denomination.
// The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// New returns an Amount holding v.
func New(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// Parse reads a base-10 integer.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return fromDecimal(d)
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.IsInteger() {
		return Amount{}, ErrNotInteger
	}
	if d.Cmp(maxAmount) > 0 || d.Cmp(minAmount) < 0 {
		return Amount{}, ErrOutOfRange
	}
	return Amount{d: d}, nil
}

// Add returns a+b, failing if the sum leaves the 128-bit range.
func (a Amount) Add(b Amount) (Amount, error) {
	return fromDecimal(a.d.Add(b.d))
}

// Sub returns a-b, failing if the difference leaves the 128-bit range.
func (a Amount) Sub(b Amount) (Amount, error) {
	return fromDecimal(a.d.Sub(b.d))
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int { return a.d.Sign() }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// String returns the base-10 representation.
func (a Amount) String() string { return a.d.String() }

// Float64 approximates a for reporting. It is never used for accounting.
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

// MarshalJSON encodes the amount as a quoted decimal string so values beyond
// 2^53 survive JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("money: decode: %w", err)
	}
	v, err := fromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
