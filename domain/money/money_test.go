package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		decimal   string
		currency  string
		wantMinor int64
		wantErr   bool
	}{
		{name: "whole amount", decimal: "5000", currency: "usd", wantMinor: 500000},
		{name: "two fractional digits", decimal: "50.25", currency: "USD", wantMinor: 5025},
		{name: "pads single fractional digit", decimal: "10.5", currency: "USD", wantMinor: 1050},
		{name: "negative amount", decimal: "-12.34", currency: "USD", wantMinor: -1234},
		{name: "empty string rejected", decimal: "", currency: "USD", wantErr: true},
		{name: "too many fractional digits rejected", decimal: "1.234", currency: "USD", wantErr: true},
		{name: "non numeric rejected", decimal: "abc", currency: "USD", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.decimal, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMinor, got.Minor)
			assert.Equal(t, "USD", got.Currency)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "50.00 USD", FromMinor(5000, "usd").String())
	assert.Equal(t, "-12.34 USD", FromMinor(-1234, "USD").String())
	assert.Equal(t, "0.05 USD", FromMinor(5, "USD").String())
}

func TestAmount_IsPositiveIsZero(t *testing.T) {
	assert.True(t, FromMinor(1, "USD").IsPositive())
	assert.False(t, FromMinor(0, "USD").IsPositive())
	assert.True(t, FromMinor(0, "USD").IsZero())
	assert.False(t, FromMinor(-1, "USD").IsZero())
}

func TestAmount_AddSub(t *testing.T) {
	a := FromMinor(1000, "USD")
	b := FromMinor(250, "USD")
	assert.Equal(t, FromMinor(1250, "USD"), a.Add(b))
	assert.Equal(t, FromMinor(750, "USD"), a.Sub(b))
}

func TestAmount_Comparisons(t *testing.T) {
	a := FromMinor(1000, "USD")
	b := FromMinor(500, "USD")
	assert.True(t, a.GreaterThan(b))
	assert.False(t, b.GreaterThan(a))
	assert.True(t, b.LessThanOrEqual(a))
	assert.True(t, a.LessThanOrEqual(a))
}

func TestAmount_MismatchedCurrencyPanics(t *testing.T) {
	a := FromMinor(1000, "USD")
	b := FromMinor(500, "EUR")
	assert.Panics(t, func() { a.Add(b) })
	assert.Panics(t, func() { a.GreaterThan(b) })
}

func TestAmount_ZeroCurrencyDoesNotPanic(t *testing.T) {
	a := FromMinor(1000, "")
	b := FromMinor(500, "USD")
	assert.NotPanics(t, func() { a.Add(b) })
}
