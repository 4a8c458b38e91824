// Package event implements the append-only TransactionEvent log (C2): every
// saga/payment/limit state change is appended to this log in the same
// transaction as the business mutation, then published at-least-once by a
// background worker. See Outbox for the publish side.
package event

import "time"

// Type enumerates the transaction event types the outbox publishes.
type Type string

const (
	TypePaymentInitiated      Type = "PaymentInitiated"
	TypeFraudApproved         Type = "FraudApproved"
	TypeFraudRejected         Type = "FraudRejected"
	TypeLimitReserved         Type = "LimitReserved"
	TypeLimitConsumed         Type = "LimitConsumed"
	TypeLimitReleased         Type = "LimitReleased"
	TypeLimitExpired          Type = "LimitExpired"
	TypeFundsHeld             Type = "FundsHeld"
	TypeFundsReleased         Type = "FundsReleased"
	TypeRoutingDecided        Type = "RoutingDecided"
	TypeClearingSubmitted     Type = "ClearingSubmitted"
	TypeClearingCleared       Type = "ClearingCleared"
	TypeClearingRejected      Type = "ClearingRejected"
	TypePaymentCompleted      Type = "PaymentCompleted"
	TypePaymentFailed         Type = "PaymentFailed"
	TypePaymentRejected       Type = "PaymentRejected"
	TypeCompensationStarted   Type = "CompensationStarted"
	TypeCompensationCompleted Type = "CompensationCompleted"
	TypeQueuedMessageComplete Type = "QueuedMessageCompleted"
)

// Status tracks an event's position in the at-least-once publish pipeline.
type Status string

const (
	StatusUnpublished Status = "UNPUBLISHED"
	StatusPublished   Status = "PUBLISHED"
	StatusPoison      Status = "POISON"
)

// TransactionEvent is one row of the append-only, gap-free, per-saga
// sequenced history.
type TransactionEvent struct {
	EventID        string
	SagaID         string
	Seq            int64
	Type           Type
	Payload        map[string]interface{}
	OccurredAt     time.Time
	CorrelationID  string
	CausationID    string
	TenantID       string
	BusinessUnitID string

	Status        Status
	PublishAttempt int
}

// New constructs an unpublished TransactionEvent. Seq must already be the
// strictly-increasing next sequence number for sagaID; callers obtain it
// from the saga's own seq counter (domain/saga), never compute it here.
func New(eventID, sagaID string, seq int64, typ Type, payload map[string]interface{}, occurredAt time.Time, correlationID, causationID, tenantID, businessUnitID string) TransactionEvent {
	return TransactionEvent{
		EventID:        eventID,
		SagaID:         sagaID,
		Seq:            seq,
		Type:           typ,
		Payload:        payload,
		OccurredAt:     occurredAt,
		CorrelationID:  correlationID,
		CausationID:    causationID,
		TenantID:       tenantID,
		BusinessUnitID: businessUnitID,
		Status:         StatusUnpublished,
	}
}
