package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/domain/money"
)

func validRequest() Request {
	return Request{
		TenantID:         "tenant-1",
		BusinessUnitID:   "bu-1",
		CustomerID:       "cust-1",
		DebitAccountRef:  "acc-debit",
		CreditAccountRef: "acc-credit",
		AmountDecimal:    "100.00",
		Currency:         "usd",
		PaymentType:      TypeEFT,
	}
}

func TestValidate_Success(t *testing.T) {
	amount, err := Validate(validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(10000), amount.Minor)
	assert.Equal(t, "USD", amount.Currency)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r Request) Request
	}{
		{name: "missing tenant", mutate: func(r Request) Request { r.TenantID = ""; return r }},
		{name: "missing currency", mutate: func(r Request) Request { r.Currency = ""; return r }},
		{name: "currency not three letters", mutate: func(r Request) Request { r.Currency = "US"; return r }},
		{name: "unsupported payment type", mutate: func(r Request) Request { r.PaymentType = "BITCOIN"; return r }},
		{name: "zero amount", mutate: func(r Request) Request { r.AmountDecimal = "0.00"; return r }},
		{name: "negative amount", mutate: func(r Request) Request { r.AmountDecimal = "-5.00"; return r }},
		{name: "malformed amount", mutate: func(r Request) Request { r.AmountDecimal = "nope"; return r }},
		{name: "debit equals credit", mutate: func(r Request) Request { r.CreditAccountRef = r.DebitAccountRef; return r }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.mutate(validRequest()))
			assert.Error(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	req := validRequest()
	amount := money.FromMinor(10000, "USD")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p := New("pay-1", req, amount, now)

	assert.Equal(t, "pay-1", p.PaymentID)
	assert.Equal(t, req.TenantID, p.TenantID)
	assert.Equal(t, amount, p.Amount)
	assert.Equal(t, StatusInitiated, p.Status)
	assert.Equal(t, now, p.CreatedAt)
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusRejected, StatusTimedOut}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []Status{StatusInitiated, StatusProcessing}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to not be terminal", s)
	}
}
