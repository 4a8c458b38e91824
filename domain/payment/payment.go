// Package payment defines the Payment aggregate: the business intent that
// enters the core through a PaymentInitiationSource and is thereafter
// mutated only by the saga orchestrator.
package payment

import (
	"time"

	"github.com/go-playground/validator/v10"

	svcerrors "github.com/paymentflow/core/infrastructure/errors"
	"github.com/paymentflow/core/domain/money"
)

// Type enumerates the clearing rails a payment may travel.
type Type string

const (
	TypeEFT         Type = "EFT"
	TypeRTC         Type = "RTC"
	TypeRTGS        Type = "RTGS"
	TypeDebitOrder  Type = "DEBIT_ORDER"
	TypeCard        Type = "CARD"
	TypeWallet      Type = "WALLET"
)

// ValidTypes is the closed set of supported payment types.
var ValidTypes = map[Type]bool{
	TypeEFT: true, TypeRTC: true, TypeRTGS: true,
	TypeDebitOrder: true, TypeCard: true, TypeWallet: true,
}

// Status is the payment's externally-visible lifecycle state, derived from
// its SagaInstance (see domain/saga). Payment itself never transitions
// independently of the saga driving it.
type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRejected   Status = "REJECTED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// Payment is the business intent recorded on initiation. PaymentID is
// globally unique and doubles as the owning SagaInstance's SagaID.
type Payment struct {
	PaymentID         string
	TenantID          string
	BusinessUnitID    string
	CustomerID        string
	DebitAccountRef   string
	CreditAccountRef  string
	Amount            money.Amount
	PaymentType       Type
	LocalInstrument   string
	ExternalReference string
	Metadata          map[string]interface{}
	CreatedAt         time.Time
	Status            Status
}

// Request is the inbound shape delivered by a PaymentInitiationSource (C10).
// PaymentID is optional: if absent the core generates one.
type Request struct {
	PaymentID         string                 `validate:"omitempty"`
	TenantID          string                 `validate:"required"`
	BusinessUnitID    string                 `validate:"required"`
	ExternalReference string                 `validate:"omitempty"`
	CustomerID        string                 `validate:"required"`
	DebitAccountRef   string                 `validate:"required"`
	CreditAccountRef  string                 `validate:"required"`
	AmountDecimal     string                 `validate:"required"`
	Currency          string                 `validate:"required,len=3"`
	PaymentType       Type                   `validate:"required"`
	LocalInstrument   string                 `validate:"omitempty"`
	Metadata          map[string]interface{} `validate:"omitempty"`
}

var validate = validator.New()

// Validate runs struct-tag validation and the domain invariants
// requires (amount > 0, known payment type), returning a
// svcerrors.ServiceError classified as ValidationError so the caller can
// surface it synchronously without a saga ever being created.
func Validate(req Request) (money.Amount, error) {
	if err := validate.Struct(req); err != nil {
		return money.Amount{}, svcerrors.Validation("request", err.Error())
	}
	if !ValidTypes[req.PaymentType] {
		return money.Amount{}, svcerrors.Validation("payment_type", "unsupported payment type")
	}
	amount, err := money.New(req.AmountDecimal, req.Currency)
	if err != nil {
		return money.Amount{}, svcerrors.Validation("amount", err.Error())
	}
	if !amount.IsPositive() {
		return money.Amount{}, svcerrors.Validation("amount", "amount must be greater than zero")
	}
	if req.DebitAccountRef == req.CreditAccountRef {
		return money.Amount{}, svcerrors.Validation("account_ref", "debit and credit accounts must differ")
	}
	return amount, nil
}

// New constructs a Payment from a validated Request, amount, and generated
// identifiers/timestamp.
func New(paymentID string, req Request, amount money.Amount, now time.Time) *Payment {
	return &Payment{
		PaymentID:         paymentID,
		TenantID:          req.TenantID,
		BusinessUnitID:    req.BusinessUnitID,
		CustomerID:        req.CustomerID,
		DebitAccountRef:   req.DebitAccountRef,
		CreditAccountRef:  req.CreditAccountRef,
		Amount:            amount,
		PaymentType:       req.PaymentType,
		LocalInstrument:   req.LocalInstrument,
		ExternalReference: req.ExternalReference,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		Status:            StatusInitiated,
	}
}

// IsTerminal reports whether status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusTimedOut:
		return true
	default:
		return false
	}
}
