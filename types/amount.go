// Package types provides value types shared across Paylink.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every settlement token.
const Decimals = 18

// Amount is an exact token quantity in base units (10^-18 of a whole token).
// All arithmetic is integer-only; the zero value is a valid zero amount.
// Amounts are immutable: arithmetic returns a new value.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receivers for decoding.
type Amount struct {
	v *big.Int
}

// Zero is the zero Amount.
var Zero = Amount{}

// NewAmount wraps a base-unit integer. The argument is copied.
func NewAmount(units *big.Int) Amount {
	if units == nil {
		return Zero
	}
	return Amount{v: new(big.Int).Set(units)}
}

// Units creates an Amount from an int64 count of base units.
func Units(n int64) Amount {
	return Amount{v: big.NewInt(n)}
}

// ParseAmount parses a human decimal quantity such as "100.00" or "0.5"
// into base units. More than Decimals fractional digits is an error.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("types: parse amount %q: %w", s, err)
	}
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Zero, fmt.Errorf("types: parse amount %q: more than %d fractional digits", s, Decimals)
	}
	return Amount{v: shifted.BigInt()}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a base-unit integer string such as "100000000000000000000".
func ParseUnits(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero, fmt.Errorf("types: parse units %q: not a base-10 integer", s)
	}
	return Amount{v: v}, nil
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// BigInt returns a copy of the base-unit value.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.big())
}

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), other.big())}
}

// Sub returns a - other. The result may be negative.
func (a Amount) Sub(other Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), other.big())}
}

// Comparison methods

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.big().Cmp(other.big()) }

// Sign returns -1, 0 or +1 depending on the sign of a.
func (a Amount) Sign() int { return a.big().Sign() }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.Sign() > 0 }

// Equal returns true if both amounts hold the same number of base units.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan returns true if a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// Sum adds up amounts.
func Sum(amounts ...Amount) Amount {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a.big())
	}
	return Amount{v: total}
}

// Formatting methods

// Decimal returns the amount in whole-token units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), -Decimals)
}

// String returns the whole-token decimal form without trailing zeros: "100", "0.5".
func (a Amount) String() string {
	return a.Decimal().String()
}

// Format returns the whole-token decimal form with exactly places fractional digits,
// truncating any further digits: Format(2) of 100 tokens is "100.00".
func (a Amount) Format(places int32) string {
	return a.Decimal().Truncate(places).StringFixed(places)
}

// UnitsString returns the base-unit integer as a decimal string.
func (a Amount) UnitsString() string {
	return a.big().String()
}

// MarshalText encodes the amount as a base-unit integer string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.UnitsString()), nil
}

// UnmarshalText decodes a base-unit integer string.
func (a *Amount) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Zero
		return nil
	}
	parsed, err := ParseUnits(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. Amounts are quoted so no JSON
// decoder can round them through float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.UnitsString())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("types: amount must be a quoted integer: %w", err)
	}
	return a.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.UnitsString(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		*a = Units(v)
		return nil
	default:
		return fmt.Errorf("types: cannot scan %T into Amount", src)
	}
}
