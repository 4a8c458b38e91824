// Package contracts declares the external adapter interfaces (C10) the
// orchestration core consumes. Only the interfaces live here; real
// implementations (an HTTP-shaped clearing channel, a websocket-backed async
// one, in-memory fakes) live alongside them in this package for tests and
// example wiring.
package contracts

import (
	"context"
	"net/http"

	"github.com/paymentflow/core/domain/account"
	"github.com/paymentflow/core/domain/fraud"
	"github.com/paymentflow/core/domain/payment"
)

// httpDoer is satisfied by *http.Client and by
// infrastructure/ratelimit.RateLimitedClient, so every HTTP-shaped adapter
// in this package can be throttled at construction time without adapter
// code depending on the rate limiter directly.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PaymentRequest is what a PaymentInitiationSource delivers to the core,
// matching submit_payment's abstract request shape. Idempotent by
// (tenant_id, external_reference): redelivering the same external_reference
// must resolve to the same payment_id and not create a second saga.
type PaymentRequest struct {
	TenantID          string
	BusinessUnitID    string
	PaymentID         string // optional; generated if absent
	ExternalReference string
	CustomerID        string
	DebitAccountRef   string
	CreditAccountRef  string
	AmountDecimal     string
	Currency          string
	PaymentType       payment.Type
	LocalInstrument   string
	Metadata          map[string]interface{}
}

// ToPaymentRequest adapts r into the payment package's validated Request
// shape. PaymentID is carried separately (submit_payment's own idempotency
// concern) since payment.Request treats it as optional/caller-generated.
func (r PaymentRequest) ToPaymentRequest() payment.Request {
	return payment.Request{
		PaymentID:         r.PaymentID,
		TenantID:          r.TenantID,
		BusinessUnitID:    r.BusinessUnitID,
		ExternalReference: r.ExternalReference,
		CustomerID:        r.CustomerID,
		DebitAccountRef:   r.DebitAccountRef,
		CreditAccountRef:  r.CreditAccountRef,
		AmountDecimal:     r.AmountDecimal,
		Currency:          r.Currency,
		PaymentType:       r.PaymentType,
		LocalInstrument:   r.LocalInstrument,
		Metadata:          r.Metadata,
	}
}

// PaymentInitiationSource delivers inbound payment requests to the core.
type PaymentInitiationSource interface {
	Receive(ctx context.Context) (PaymentRequest, error)
}

// ClearingOutcome is the terminal (or pending) state of a clearing attempt.
type ClearingOutcome string

const (
	ClearingCleared  ClearingOutcome = "CLEARED"
	ClearingRejected ClearingOutcome = "REJECTED"
	ClearingPending  ClearingOutcome = "PENDING"
)

// ClearingSubmission carries what a ClearingChannel needs to submit a
// payment once routing has selected it.
type ClearingSubmission struct {
	PaymentID        string
	TenantID         string
	DebitAccountRef  string
	CreditAccountRef string
	AmountMinor      int64
	Currency         string
	ClearingSystem   string
}

// ClearingChannel submits a payment to an external clearing/settlement rail.
// Implementations may be synchronous (RTC/RTGS: await_outcome returns
// immediately after submit) or asynchronous (ACH/EFT: await_outcome may
// return PENDING for an extended period), signalled by IsAsync.
type ClearingChannel interface {
	IsAsync() bool
	Submit(ctx context.Context, sub ClearingSubmission) (clearingRef string, err error)
	Cancel(ctx context.Context, clearingRef string) (bool, error)
	AwaitOutcome(ctx context.Context, clearingRef string) (ClearingOutcome, error)
}

// FraudScoreProvider is the external fraud scorer contract; it is the same
// interface domain/fraud.Provider declares, re-exported here so saga-level
// wiring has a single C10 surface to depend on.
type FraudScoreProvider = fraud.Provider

// NotificationSink is a fire-and-forget consumer of terminal saga outcomes.
// Implementations must tolerate duplicate delivery.
type NotificationSink interface {
	Notify(ctx context.Context, tenantID, paymentID, status, reason string) error
}

// LedgerStore is the Account Adapter contract: get_account, place_hold,
// capture_hold, release_hold, credit, debit over whichever backend owns the
// account reference.
type LedgerStore interface {
	Execute(ctx context.Context, tenantID string, req account.Request) (account.Response, error)
}
