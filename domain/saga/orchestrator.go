package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/domain/event"
	svcerrors "github.com/paymentflow/core/infrastructure/errors"
)

// ErrLeaseHeld is returned by Drive when another worker currently holds the
// saga's lease.
var ErrLeaseHeld = fmt.Errorf("saga: lease held by another worker")

// ErrSuspended is returned by Drive when a step's effect is retryable or the
// saga is genuinely waiting on an external event; the caller should redrive
// later rather than treat it as a failure.
var ErrSuspended = fmt.Errorf("saga: suspended, redrive later")

type binding struct {
	step Step
	next Status
}

// Orchestrator is the Saga Orchestrator (C8): it loads a SagaInstance,
// acquires its lease, runs the step bound to its current status, and
// persists the result — one status transition per Drive call.
// DefaultMaxStepRetries bounds how many retryable failures a single step
// tolerates before the orchestrator gives up and escalates to compensation
// with cause MaxRetriesExceeded, per the poison-handling rule.
const DefaultMaxStepRetries = 5

type Orchestrator struct {
	store  Store
	leases *LeaseStore
	events event.Store
	clock  clock.Clock
	owner  string
	leaseTTL time.Duration
	maxStepRetries int

	bindings map[Status]binding
	// autoAdvance transitions have no externally visible step: they just
	// move the saga from a "settled" status into the next "working" one.
	autoAdvance map[Status]Status
	byName      map[string]Step
}

// NewOrchestrator wires an Orchestrator over the seven pipeline steps.
// maxStepRetries <= 0 falls back to DefaultMaxStepRetries.
func NewOrchestrator(store Store, leases *LeaseStore, events event.Store, c clock.Clock, owner string, leaseTTL time.Duration, maxStepRetries int,
	fraudStep *FraudEvalStep, limitStep *LimitReserveStep, fundsStep *FundsHoldStep, routeStep *RouteSelectStep,
	clearingSubmit *ClearingSubmitStep, awaitClearing *AwaitClearingStep, ledgerPost *LedgerPostStep) *Orchestrator {

	if maxStepRetries <= 0 {
		maxStepRetries = DefaultMaxStepRetries
	}
	o := &Orchestrator{
		store: store, leases: leases, events: events, clock: c, owner: owner, leaseTTL: leaseTTL,
		maxStepRetries: maxStepRetries,
		byName: make(map[string]Step),
	}

	o.bindings = map[Status]binding{
		StatusFraudEval:         {fraudStep, StatusLimitReserving},
		StatusLimitReserving:    {limitStep, StatusLimitReserved},
		StatusFundsHolding:      {fundsStep, StatusFundsHeld},
		StatusRouting:           {routeStep, StatusRouted},
		StatusClearingSubmitted: {clearingSubmit, StatusAwaitingClearing},
		StatusAwaitingClearing:  {awaitClearing, StatusPosting},
		StatusPosting:           {ledgerPost, StatusCompleted},
	}
	o.autoAdvance = map[Status]Status{
		StatusInitiated:     StatusFraudEval,
		StatusLimitReserved: StatusFundsHolding,
		StatusFundsHeld:     StatusRouting,
		StatusRouted:        StatusClearingSubmitted,
	}
	for _, b := range o.bindings {
		o.byName[b.step.Name()] = b.step
	}
	return o
}

// Drive runs exactly one unit of work for sagaID: an auto-advance, a step
// execution, or one compensation-stack pop. It returns the saga's status
// after that unit of work.
func (o *Orchestrator) Drive(ctx context.Context, sagaID string) (Status, error) {
	inst, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return "", err
	}
	if inst.Status.IsTerminal() {
		return inst.Status, nil
	}

	acquired, err := o.leases.Acquire(ctx, sagaID, o.owner, o.leaseTTL)
	if err != nil {
		return inst.Status, err
	}
	if !acquired {
		return inst.Status, ErrLeaseHeld
	}
	defer o.leases.Release(ctx, sagaID, o.owner)

	if !inst.Deadline.IsZero() && o.clock.Now().After(inst.Deadline) && inst.Status != StatusCompensating {
		return o.beginCompensation(ctx, inst, "saga deadline exceeded", StatusTimedOut)
	}

	if inst.Status == StatusCompensating {
		return o.driveCompensation(ctx, inst)
	}

	if next, ok := o.autoAdvance[inst.Status]; ok {
		inst.Status = next
		inst.UpdatedAt = o.clock.Now()
		return inst.Status, o.store.Put(ctx, inst)
	}

	b, ok := o.bindings[inst.Status]
	if !ok {
		return inst.Status, fmt.Errorf("saga: no step bound to status %s", inst.Status)
	}

	outcome, err := b.step.Execute(ctx, inst)
	if err != nil {
		return o.handleStepError(ctx, inst, b.step, err)
	}

	inst.RecordStep(b.step.Name(), b.step.HasCompensator(), outcome.Payload)
	if outcome.EventType != "" {
		if err := o.appendEvent(ctx, inst, outcome.EventType, outcome.Payload); err != nil {
			return inst.Status, err
		}
	}
	inst.Status = b.next
	if inst.Status == StatusCompleted {
		// A completed saga has nothing left to unwind.
		inst.CompensationStack = nil
	}
	inst.UpdatedAt = o.clock.Now()
	if err := o.store.Put(ctx, inst); err != nil {
		return inst.Status, err
	}
	return inst.Status, nil
}

// Run drives sagaID to completion (a terminal status) or until a suspension
// point is reached, looping Drive calls in-process. Tests use this; a real
// deployment's external redrive loop calls Drive directly so a suspension
// genuinely returns control between ticks.
func (o *Orchestrator) Run(ctx context.Context, sagaID string) (Status, error) {
	for {
		status, err := o.Drive(ctx, sagaID)
		if errors.Is(err, ErrSuspended) {
			return status, nil
		}
		if err != nil {
			return status, err
		}
		if status.IsTerminal() {
			return status, nil
		}
	}
}

// ErrCancelRejected is returned by Cancel when the saga has already passed
// the point of irrevocable clearing submission (AWAITING_CLEARING or later)
// or has already reached a terminal status.
var ErrCancelRejected = fmt.Errorf("saga: cancellation rejected, past point of no return")

// cancellableStatuses are every non-terminal status up to and including
// CLEARING_SUBMITTED — the step bound to CLEARING_SUBMITTED is the one that
// actually performs the submission, so a saga still sitting at that status
// has not yet talked to the clearing rail.
var cancellableStatuses = map[Status]bool{
	StatusInitiated: true, StatusFraudEval: true, StatusLimitReserving: true,
	StatusLimitReserved: true, StatusFundsHolding: true, StatusFundsHeld: true,
	StatusRouting: true, StatusRouted: true, StatusClearingSubmitted: true,
}

// Cancel drives a user-initiated cancellation: it acquires the saga's lease
// exactly like Drive and, if the saga is still before its irrevocable
// clearing-submission point, begins compensation with a REJECTED terminal
// outcome. A saga already COMPENSATING is treated as already-cancelled
// (idempotent accept); anything else returns ErrCancelRejected.
func (o *Orchestrator) Cancel(ctx context.Context, sagaID string) (Status, error) {
	inst, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return "", err
	}
	if inst.Status == StatusCompensating {
		return inst.Status, nil
	}
	if !cancellableStatuses[inst.Status] {
		return inst.Status, ErrCancelRejected
	}

	acquired, err := o.leases.Acquire(ctx, sagaID, o.owner, o.leaseTTL)
	if err != nil {
		return inst.Status, err
	}
	if !acquired {
		return inst.Status, ErrLeaseHeld
	}
	defer o.leases.Release(ctx, sagaID, o.owner)

	inst.FailureReason = "cancelled by caller"
	status, err := o.beginCompensation(ctx, inst, inst.FailureReason, StatusRejected)
	if errors.Is(err, ErrSuspended) {
		return status, nil
	}
	return status, err
}

func (o *Orchestrator) handleStepError(ctx context.Context, inst *Instance, step Step, stepErr error) (Status, error) {
	se := svcerrors.GetServiceError(stepErr)

	if svcerrors.IsRetryable(stepErr) {
		if inst.AttemptCounts == nil {
			inst.AttemptCounts = make(map[string]int)
		}
		inst.AttemptCounts[step.Name()]++

		if inst.AttemptCounts[step.Name()] > o.maxStepRetries {
			inst.FailureCause = string(svcerrors.ErrCodeMaxRetriesExceeded)
			return o.beginCompensation(ctx, inst, stepErr.Error(), StatusFailed)
		}

		// Suspend: persist unchanged and let the next Drive call retry this
		// same step, consistent with the suspension-point model — no
		// in-process blocking retry.
		inst.UpdatedAt = o.clock.Now()
		if err := o.store.Put(ctx, inst); err != nil {
			return inst.Status, err
		}
		return inst.Status, ErrSuspended
	}

	inst.FailureReason = stepErr.Error()

	if svcerrors.RequiresCompensation(stepErr) {
		terminal := StatusFailed
		if se != nil {
			switch se.Code {
			case svcerrors.ErrCodeInsufficientFunds:
				terminal = StatusRejected
			case svcerrors.ErrCodeDeadlineExceeded:
				terminal = StatusTimedOut
			case svcerrors.ErrCodeClearingRejected:
				terminal = StatusFailed
			}
			inst.FailureCause = string(se.Code)
		}
		return o.beginCompensation(ctx, inst, inst.FailureReason, terminal)
	}

	// Fraud rejection, limit-exceeded, and validation/authorization denials
	// all terminate the saga directly: none of them can fire after anything
	// compensable has been committed, so there is nothing to unwind.
	if se != nil && (se.Code == svcerrors.ErrCodeFraudRejected || se.Code == svcerrors.ErrCodeLimitExceeded ||
		se.Code == svcerrors.ErrCodeValidation || se.Code == svcerrors.ErrCodeAuthorization) {
		inst.Status = StatusRejected
		inst.UpdatedAt = o.clock.Now()
		_ = o.appendEvent(ctx, inst, event.TypePaymentRejected, map[string]interface{}{"reason": inst.FailureReason})
		return inst.Status, o.store.Put(ctx, inst)
	}

	// Anything else unclassified: treat conservatively as compensation-
	// worthy, defaulting to FAILED, per the "Unknown" failure classification.
	inst.FailureCause = "Unknown"
	return o.beginCompensation(ctx, inst, inst.FailureReason, StatusFailed)
}

func (o *Orchestrator) beginCompensation(ctx context.Context, inst *Instance, reason string, terminal Status) (Status, error) {
	inst.Status = StatusCompensating
	inst.PendingTerminal = terminal
	if inst.FailureReason == "" {
		inst.FailureReason = reason
	}
	inst.UpdatedAt = o.clock.Now()
	_ = o.appendEvent(ctx, inst, event.TypeCompensationStarted, map[string]interface{}{"reason": inst.FailureReason})
	if err := o.store.Put(ctx, inst); err != nil {
		return inst.Status, err
	}
	return o.driveCompensation(ctx, inst)
}

// driveCompensation pops and runs one compensation entry. A failed
// compensator suspends the saga in COMPENSATING for redrive — compensators
// are meant to be retried indefinitely, never abandoned.
func (o *Orchestrator) driveCompensation(ctx context.Context, inst *Instance) (Status, error) {
	entry, ok := inst.PopCompensation()
	if !ok {
		terminal := inst.PendingTerminal
		if terminal == "" {
			terminal = StatusFailed
		}
		inst.Status = terminal
		inst.UpdatedAt = o.clock.Now()
		_ = o.appendEvent(ctx, inst, event.TypeCompensationCompleted, nil)
		var finalType event.Type
		switch terminal {
		case StatusRejected:
			finalType = event.TypePaymentRejected
		default:
			finalType = event.TypePaymentFailed
		}
		_ = o.appendEvent(ctx, inst, finalType, map[string]interface{}{"reason": inst.FailureReason})
		return inst.Status, o.store.Put(ctx, inst)
	}

	step, ok := o.byName[entry.StepName]
	if !ok {
		return inst.Status, fmt.Errorf("saga: no step registered for compensator %q", entry.StepName)
	}
	if err := step.Compensate(ctx, inst, entry.Payload); err != nil {
		// Push the entry back so the next redrive retries the same
		// compensator, and suspend rather than abandon it.
		inst.CompensationStack = append(inst.CompensationStack, entry)
		inst.UpdatedAt = o.clock.Now()
		if putErr := o.store.Put(ctx, inst); putErr != nil {
			return inst.Status, putErr
		}
		return inst.Status, ErrSuspended
	}

	inst.UpdatedAt = o.clock.Now()
	if err := o.store.Put(ctx, inst); err != nil {
		return inst.Status, err
	}
	return inst.Status, nil
}

func (o *Orchestrator) appendEvent(ctx context.Context, inst *Instance, typ event.Type, payload map[string]interface{}) error {
	if o.events == nil {
		return nil
	}
	seq := inst.NextSeq()
	ev := event.New(inst.SagaID+":"+fmt.Sprint(seq), inst.SagaID, seq, typ, payload, o.clock.Now(), inst.SagaID, "", inst.TenantID, inst.BusinessUnitID)
	return o.events.Append(ctx, ev)
}
