// Package saga implements the Saga Orchestrator (C8): a persistent,
// interface-driven state machine that drives a payment through fraud
// evaluation, limit reservation, funds hold, routing, clearing submission,
// ledger posting, and limit consumption, compensating in strict LIFO order
// on any non-retryable failure.
package saga

import "time"

// Status is a saga's position in its state machine. Terminal statuses never
// transition further.
type Status string

const (
	StatusInitiated         Status = "INITIATED"
	StatusFraudEval         Status = "FRAUD_EVAL"
	StatusLimitReserving    Status = "LIMIT_RESERVING"
	StatusLimitReserved     Status = "LIMIT_RESERVED"
	StatusFundsHolding      Status = "FUNDS_HOLDING"
	StatusFundsHeld         Status = "FUNDS_HELD"
	StatusRouting           Status = "ROUTING"
	StatusRouted            Status = "ROUTED"
	StatusClearingSubmitted Status = "CLEARING_SUBMITTED"
	StatusAwaitingClearing  Status = "AWAITING_CLEARING"
	StatusPosting           Status = "POSTING"
	StatusCompleted         Status = "COMPLETED"
	StatusCompensating      Status = "COMPENSATING"
	StatusFailed            Status = "FAILED"
	StatusTimedOut          Status = "TIMED_OUT"
	StatusRejected          Status = "REJECTED"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusTimedOut:  true,
	StatusRejected:  true,
}

// IsTerminal reports whether s is one of the four terminal statuses.
func (s Status) IsTerminal() bool { return terminalStatuses[s] }

// CompensationEntry is one entry of a saga's compensation stack: the step
// that needs undoing, plus whatever that step's Execute recorded about what
// it did (e.g. {"reservation_id": "..."} or {"hold_ref": "..."}), so its
// Compensate method can act without re-deriving that state.
type CompensationEntry struct {
	StepName string
	Payload  map[string]interface{}
}

// Instance is the persisted aggregate a saga drives. Its CompletedSteps /
// CompensationStack pair is the property spec-level test suites assert on
// directly: every terminal instance must have an empty CompensationStack.
type Instance struct {
	SagaID         string
	TenantID       string
	BusinessUnitID string
	PaymentID      string
	CustomerID     string
	PaymentType    string
	AmountMinor    int64
	Currency       string

	DebitAccountRef  string
	CreditAccountRef string

	Status      Status
	CurrentStep int

	CompletedSteps    []string
	CompensationStack []CompensationEntry

	// AttemptCounts tracks retryable-failure attempts per step name, reset
	// implicitly by never being touched again once a step records success
	// (RecordStep doesn't clear it — a completed step's count is just
	// historical by then). handleStepError escalates to MaxRetriesExceeded
	// once a step's count exceeds the configured per-step budget.
	AttemptCounts map[string]int

	// Scratch space steps write into and read back from; populated as the
	// saga progresses so later steps (and compensators) have what earlier
	// steps produced without re-deriving it.
	ReservationID  string
	HoldRef        string
	ClearingSystem string
	ClearingRef    string

	FailureReason string
	FailureCause  string
	// PendingTerminal is the terminal Status the orchestrator moves to once
	// the compensation stack has fully unwound.
	PendingTerminal Status

	Seq int64

	Deadline  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordStep appends stepName to CompletedSteps and, if hasCompensator,
// pushes entry onto the compensation stack. It is the only forward-path
// writer of either slice; PopCompensation removes entries, and the
// orchestrator pushes a failed compensator's entry back and empties the
// stack once the saga completes.
func (i *Instance) RecordStep(stepName string, hasCompensator bool, payload map[string]interface{}) {
	i.CompletedSteps = append(i.CompletedSteps, stepName)
	if hasCompensator {
		i.CompensationStack = append(i.CompensationStack, CompensationEntry{StepName: stepName, Payload: payload})
	}
}

// PopCompensation removes and returns the top (most recently pushed) entry,
// enforcing strict LIFO unwind order.
func (i *Instance) PopCompensation() (CompensationEntry, bool) {
	n := len(i.CompensationStack)
	if n == 0 {
		return CompensationEntry{}, false
	}
	entry := i.CompensationStack[n-1]
	i.CompensationStack = i.CompensationStack[:n-1]
	return entry, true
}

// NextSeq returns the next strictly-increasing event sequence number for
// this saga and advances the counter.
func (i *Instance) NextSeq() int64 {
	i.Seq++
	return i.Seq
}
