// Package money implements an exact monetary amount type as integer minor
// units (cents) rather than a decimal library or float64 (see DESIGN.md):
// saga.Instance, the Postgres repository columns, and the wire JSON shapes
// all already commit to int64 minor units, so this is the representation
// actually exercised end to end rather than an intermediate one translated
// at every boundary. Integer minor units also keep "amount > 0" and
// limit-bucket comparisons exact under repeated addition.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is an exact monetary value: a minor-unit integer (e.g. cents for
// ZAR/USD) plus an ISO 4217 currency code.
type Amount struct {
	Minor    int64
	Currency string
}

// Zero returns a zero-value Amount in the given currency.
func Zero(currency string) Amount {
	return Amount{Minor: 0, Currency: currency}
}

// New constructs an Amount from a decimal string such as "5000.00", rejecting
// malformed input and anything with more than two fractional digits.
func New(decimal, currency string) (Amount, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return Amount{}, fmt.Errorf("money: amount is required")
	}
	neg := strings.HasPrefix(decimal, "-")
	if neg {
		decimal = decimal[1:]
	}
	parts := strings.SplitN(decimal, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", decimal, err)
	}
	var frac int64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 2 {
			return Amount{}, fmt.Errorf("money: amount %q has more than 2 fractional digits", decimal)
		}
		for len(fracStr) < 2 {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return Amount{}, fmt.Errorf("money: invalid amount %q: %w", decimal, err)
		}
	}
	minor := whole*100 + frac
	if neg {
		minor = -minor
	}
	return Amount{Minor: minor, Currency: strings.ToUpper(currency)}, nil
}

// FromMinor constructs an Amount directly from minor units, the shape every
// repository row scans into.
func FromMinor(minor int64, currency string) Amount {
	return Amount{Minor: minor, Currency: strings.ToUpper(currency)}
}

// String renders the amount as a decimal string followed by its currency
// code, e.g. "5000.00 USD".
func (a Amount) String() string {
	neg := ""
	minor := a.Minor
	if minor < 0 {
		neg = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", neg, minor/100, minor%100, a.Currency)
}

// IsPositive reports amount > 0, the invariant a Payment's amount must satisfy.
func (a Amount) IsPositive() bool { return a.Minor > 0 }

// IsZero reports amount == 0.
func (a Amount) IsZero() bool { return a.Minor == 0 }

// Add returns a + b. Panics on currency mismatch: mixing currencies is a
// programmer error, never a runtime input this package should swallow.
func (a Amount) Add(b Amount) Amount {
	a.mustMatch(b)
	return Amount{Minor: a.Minor + b.Minor, Currency: a.Currency}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	a.mustMatch(b)
	return Amount{Minor: a.Minor - b.Minor, Currency: a.Currency}
}

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool {
	a.mustMatch(b)
	return a.Minor > b.Minor
}

// LessThanOrEqual reports a <= b.
func (a Amount) LessThanOrEqual(b Amount) bool {
	a.mustMatch(b)
	return a.Minor <= b.Minor
}

func (a Amount) mustMatch(b Amount) {
	if a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", a.Currency, b.Currency))
	}
}
