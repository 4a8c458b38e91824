package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/paymentflow/core/domain/account"
	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/domain/contracts"
	"github.com/paymentflow/core/domain/event"
	"github.com/paymentflow/core/domain/fraud"
	"github.com/paymentflow/core/domain/limit"
	"github.com/paymentflow/core/domain/routing"
	svcerrors "github.com/paymentflow/core/infrastructure/errors"
)

// FraudEvalStep scores the payment and rejects it outright when the score
// falls in the REJECT band. It has no compensator: it is the saga's first
// step, and nothing has been reserved yet when it fails.
type FraudEvalStep struct {
	Evaluator       *fraud.Evaluator
	Toggles         fraud.ToggleStore
	Fallback        fraud.FallbackStrategy
	LocalInstrument func(*Instance) string
	Clock           clock.Clock
}

func (s *FraudEvalStep) Name() string        { return "fraud_evaluate" }
func (s *FraudEvalStep) HasCompensator() bool { return false }

func (s *FraudEvalStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	toggles, err := s.Toggles.ListToggles(ctx, inst.TenantID)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable("fraud_toggle_store", err)
	}
	localInstrument := ""
	if s.LocalInstrument != nil {
		localInstrument = s.LocalInstrument(inst)
	}

	req := fraud.ScoreRequest{
		TenantID:    inst.TenantID,
		CustomerID:  inst.CustomerID,
		PaymentID:   inst.PaymentID,
		PaymentType: inst.PaymentType,
		AmountMinor: inst.AmountMinor,
		Currency:    inst.Currency,
	}
	// Routing has not run yet at this point, so clearing_system is unknown;
	// toggle rows scoped to a specific clearing system simply won't match
	// here, which is the correct outcome (they apply post-routing).
	decision, _, err := s.Evaluator.Evaluate(ctx, req, toggles, localInstrument, "", s.Clock.Now(), s.Fallback)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable("fraud_provider", err)
	}
	if decision == fraud.DecisionReject {
		return Outcome{}, svcerrors.FraudRejected(inst.PaymentID)
	}
	return Outcome{EventType: event.TypeFraudApproved, Payload: map[string]interface{}{"decision": string(decision)}}, nil
}

func (s *FraudEvalStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	return nil
}

// LimitReserveStep reserves the payment amount against every applicable
// limit bucket. Its compensator releases the reservation, returning the
// reserved capacity to those same buckets.
type LimitReserveStep struct {
	Engine *limit.Engine
}

func (s *LimitReserveStep) Name() string        { return "limit_reserve" }
func (s *LimitReserveStep) HasCompensator() bool { return true }

func (s *LimitReserveStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	reservationID, err := s.Engine.Reserve(ctx, inst.TenantID, inst.CustomerID, inst.PaymentID, inst.AmountMinor, inst.Currency, inst.PaymentType, 0)
	if err != nil {
		if errors.Is(err, limit.ErrDuplicateReservation) {
			return Outcome{}, svcerrors.Internal("duplicate limit reservation", err)
		}
		return Outcome{}, err
	}
	inst.ReservationID = reservationID
	return Outcome{EventType: event.TypeLimitReserved, Payload: map[string]interface{}{"reservation_id": reservationID}}, nil
}

func (s *LimitReserveStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	return s.Engine.Release(ctx, inst.TenantID, inst.PaymentID, "saga compensation")
}

// FundsHoldStep places a hold on the debit account. Its compensator releases
// that hold.
type FundsHoldStep struct {
	Ledger contracts.LedgerStore
}

func (s *FundsHoldStep) Name() string        { return "funds_hold" }
func (s *FundsHoldStep) HasCompensator() bool { return true }

func (s *FundsHoldStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	req := account.Request{
		Op:             account.OpPlaceHold,
		AccountRef:     inst.DebitAccountRef,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID, account.OpPlaceHold),
		PaymentID:      inst.PaymentID,
	}
	resp, err := s.Ledger.Execute(ctx, inst.TenantID, req)
	if err != nil {
		return Outcome{}, err
	}
	switch resp.Status {
	case account.StatusOK:
		inst.HoldRef = resp.HoldRef
		return Outcome{EventType: event.TypeFundsHeld, Payload: map[string]interface{}{"hold_ref": resp.HoldRef}}, nil
	case account.StatusInsufficientFunds:
		return Outcome{}, svcerrors.InsufficientFunds(inst.DebitAccountRef)
	default:
		return Outcome{}, svcerrors.ServiceUnavailable(inst.DebitAccountRef, fmt.Errorf("place_hold returned %s", resp.Status))
	}
}

func (s *FundsHoldStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	holdRef, _ := payload["hold_ref"].(string)
	req := account.Request{
		Op:             account.OpReleaseHold,
		AccountRef:     inst.DebitAccountRef,
		HoldRef:        holdRef,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID, account.OpReleaseHold),
		PaymentID:      inst.PaymentID,
	}
	_, err := s.Ledger.Execute(ctx, inst.TenantID, req)
	return err
}

// RouteSelectStep picks the clearing system. It has no compensator: picking
// a route has no external side effect to undo.
type RouteSelectStep struct {
	Engine  *routing.Engine
	Context func(*Instance) routing.Context
}

func (s *RouteSelectStep) Name() string        { return "route_select" }
func (s *RouteSelectStep) HasCompensator() bool { return false }

func (s *RouteSelectStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	rctx := s.Context(inst)
	decision, err := s.Engine.Evaluate(ctx, inst.TenantID, rctx)
	if err != nil {
		if errors.Is(err, routing.ErrNoMatch) {
			return Outcome{}, svcerrors.Internal("no routing rule matched and no default configured", err)
		}
		return Outcome{}, svcerrors.ServiceUnavailable("routing", err)
	}
	inst.ClearingSystem = decision.ClearingSystem
	return Outcome{EventType: event.TypeRoutingDecided, Payload: map[string]interface{}{
		"clearing_system": decision.ClearingSystem,
		"rule_id":         decision.RuleID,
	}}, nil
}

func (s *RouteSelectStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	return nil
}

// ClearingSubmitStep submits the payment to the clearing rail routing
// selected. Its compensator cancels the submission if the channel supports
// it; if cancellation is refused, the failure reason records that manual
// reconciliation is needed instead of treating it as a compensation error.
type ClearingSubmitStep struct {
	Channel contracts.ClearingChannel
}

func (s *ClearingSubmitStep) Name() string        { return "clearing_submit" }
func (s *ClearingSubmitStep) HasCompensator() bool { return true }

func (s *ClearingSubmitStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	sub := contracts.ClearingSubmission{
		PaymentID:        inst.PaymentID,
		TenantID:         inst.TenantID,
		DebitAccountRef:  inst.DebitAccountRef,
		CreditAccountRef: inst.CreditAccountRef,
		AmountMinor:      inst.AmountMinor,
		Currency:         inst.Currency,
		ClearingSystem:   inst.ClearingSystem,
	}
	ref, err := s.Channel.Submit(ctx, sub)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable("clearing", err)
	}
	inst.ClearingRef = ref
	return Outcome{EventType: event.TypeClearingSubmitted, Payload: map[string]interface{}{"clearing_ref": ref}}, nil
}

func (s *ClearingSubmitStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	ref, _ := payload["clearing_ref"].(string)
	cancelled, err := s.Channel.Cancel(ctx, ref)
	if err != nil {
		return err
	}
	if !cancelled {
		inst.FailureReason = inst.FailureReason + "; clearing submission past cancellation point, needs manual reconciliation"
	}
	return nil
}

// errClearingPending marks AwaitClearingStep's "still waiting" case; the
// orchestrator treats it like any other retryable/suspendable error.
var errClearingPending = errors.New("saga: clearing outcome still pending")

// AwaitClearingStep is the saga's one genuine external suspension point: it
// polls the clearing channel for a terminal outcome and, while the outcome
// is pending, returns a retryable error so the saga suspends. Each pending
// poll counts against the step's retry budget; once that is exhausted the
// saga compensates with cause MaxRetriesExceeded.
type AwaitClearingStep struct {
	Channel contracts.ClearingChannel
}

func (s *AwaitClearingStep) Name() string        { return "await_clearing" }
func (s *AwaitClearingStep) HasCompensator() bool { return false }

func (s *AwaitClearingStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	outcome, err := s.Channel.AwaitOutcome(ctx, inst.ClearingRef)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable("clearing", err)
	}
	switch outcome {
	case contracts.ClearingCleared:
		return Outcome{EventType: event.TypeClearingCleared, Payload: nil}, nil
	case contracts.ClearingRejected:
		return Outcome{}, svcerrors.ClearingRejected(string(outcome))
	default:
		return Outcome{}, svcerrors.Transient("clearing outcome pending", errClearingPending)
	}
}

func (s *AwaitClearingStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	return nil
}

// LedgerPostStep debits the source account and credits the destination,
// then consumes the limit reservation (step 7 folded in here, since it is
// "part of COMPLETED" rather than its own observable state). Its
// compensator reverses both postings with their own distinct idempotency
// keys, so it can never collide with the forward postings' keys.
type LedgerPostStep struct {
	Ledger      contracts.LedgerStore
	LimitEngine *limit.Engine
}

func (s *LedgerPostStep) Name() string        { return "ledger_post" }
func (s *LedgerPostStep) HasCompensator() bool { return true }

func (s *LedgerPostStep) Execute(ctx context.Context, inst *Instance) (Outcome, error) {
	// The source side was already decremented when the hold was placed;
	// posting it finalizes that hold (capture_hold) rather than debiting a
	// second time.
	captureReq := account.Request{
		Op:             account.OpCaptureHold,
		AccountRef:     inst.DebitAccountRef,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID, account.OpCaptureHold),
		PaymentID:      inst.PaymentID,
		HoldRef:        inst.HoldRef,
	}
	captureResp, err := s.Ledger.Execute(ctx, inst.TenantID, captureReq)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable(inst.DebitAccountRef, err)
	}
	if captureResp.Status != account.StatusOK {
		return Outcome{}, svcerrors.ServiceUnavailable(inst.DebitAccountRef, fmt.Errorf("capture_hold returned %s", captureResp.Status))
	}

	creditReq := account.Request{
		Op:             account.OpCredit,
		AccountRef:     inst.CreditAccountRef,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID, account.OpCredit),
		PaymentID:      inst.PaymentID,
	}
	creditResp, err := s.Ledger.Execute(ctx, inst.TenantID, creditReq)
	if err != nil {
		return Outcome{}, svcerrors.ServiceUnavailable(inst.CreditAccountRef, err)
	}
	if creditResp.Status != account.StatusOK {
		return Outcome{}, svcerrors.ServiceUnavailable(inst.CreditAccountRef, fmt.Errorf("credit returned %s", creditResp.Status))
	}

	if err := s.LimitEngine.Consume(ctx, inst.TenantID, inst.PaymentID); err != nil {
		return Outcome{}, svcerrors.Internal("consuming limit reservation", err)
	}

	return Outcome{EventType: event.TypePaymentCompleted, Payload: nil}, nil
}

func (s *LedgerPostStep) Compensate(ctx context.Context, inst *Instance, payload map[string]interface{}) error {
	reverseDebit := account.Request{
		Op:             account.OpCredit,
		AccountRef:     inst.DebitAccountRef,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID+":reverse_debit", account.OpCredit),
		PaymentID:      inst.PaymentID,
	}
	if _, err := s.Ledger.Execute(ctx, inst.TenantID, reverseDebit); err != nil {
		return err
	}

	reverseCredit := account.Request{
		Op:             account.OpDebit,
		AccountRef:     inst.CreditAccountRef,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
		IdempotencyKey: account.DeriveIdempotencyKey(inst.PaymentID+":reverse_credit", account.OpDebit),
		PaymentID:      inst.PaymentID,
	}
	_, err := s.Ledger.Execute(ctx, inst.TenantID, reverseCredit)
	return err
}
