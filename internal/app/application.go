// Package app is the C6 external-interface facade: submit_payment,
// cancel_payment, and query_status over the saga orchestrator. It owns no
// business state beyond the idempotency index keyed by
// (tenant_id, external_reference); everything else already lives on the
// saga instance the orchestrator drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/domain/contracts"
	"github.com/paymentflow/core/domain/payment"
	"github.com/paymentflow/core/domain/saga"
	"github.com/paymentflow/core/infrastructure/database"
	svcerrors "github.com/paymentflow/core/infrastructure/errors"
	"github.com/paymentflow/core/infrastructure/logging"
	"github.com/paymentflow/core/infrastructure/state"
)

// Ack is submit_payment's synchronous response.
type Ack struct {
	PaymentID string
	Status    saga.Status
}

// StatusView is query_status's response.
type StatusView struct {
	PaymentID string
	Status    saga.Status
	LastSeq   int64
}

// Outcome is cancel_payment's response.
type Outcome struct {
	PaymentID string
	Status    saga.Status
	Accepted  bool
	Reason    string
}

// ErrPaymentNotFound mirrors saga.ErrNotFound at the facade boundary so
// callers outside domain/saga don't need to import it directly.
var ErrPaymentNotFound = saga.ErrNotFound

func idempotencyKey(tenantID, externalReference string) string {
	return fmt.Sprintf("payment-idem:%s:%s", tenantID, externalReference)
}

// Application wires the three external-interface operations over a
// saga.Store and saga.Orchestrator pair. DriveSynchronously controls whether
// SubmitPayment drives the saga in-process before returning (acceptable for
// single-process/dev deployments) or only creates it, leaving the
// saga.Redriver to pick it up on its next tick (the production posture,
// since a synchronous submit_payment call should not block on a clearing
// rail's round trip).
type Application struct {
	store        saga.Store
	orchestrator *saga.Orchestrator
	ids          *clock.IDService
	clock        clock.Clock
	idempotency  *state.PersistentState
	logger       *logging.Logger

	sagaDeadline       time.Duration
	driveSynchronously bool
}

// Option configures an Application at construction time.
type Option func(*Application)

// WithSagaDeadline overrides the default per-saga wall deadline.
func WithSagaDeadline(d time.Duration) Option {
	return func(a *Application) { a.sagaDeadline = d }
}

// WithSynchronousDrive makes SubmitPayment call Orchestrator.Run before
// returning instead of leaving the saga for the redriver to pick up.
func WithSynchronousDrive() Option {
	return func(a *Application) { a.driveSynchronously = true }
}

// WithLogger attaches a logger; nil is valid and silences logging.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Application) { a.logger = logger }
}

// New wires an Application. idempotency backs the external_reference dedup
// index; a state.PersistentState over state.NewMemoryBackend is sufficient
// for a single-process deployment, a Redis-backed one for a fleet.
func New(store saga.Store, orchestrator *saga.Orchestrator, ids *clock.IDService, c clock.Clock, idempotency *state.PersistentState, opts ...Option) *Application {
	a := &Application{
		store: store, orchestrator: orchestrator, ids: ids, clock: c, idempotency: idempotency,
		sagaDeadline: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SubmitPayment validates req, resolves it against the idempotency index,
// and (if new) creates the saga instance that carries it through the
// pipeline. Redelivering the same (tenant_id, external_reference) pair
// returns the original payment's current Ack rather than creating a second
// saga.
func (a *Application) SubmitPayment(ctx context.Context, req contracts.PaymentRequest) (Ack, error) {
	if err := database.ValidateID("tenant_id", req.TenantID); err != nil {
		return Ack{}, err
	}
	req.ExternalReference = database.SanitizeString(req.ExternalReference)
	req.CustomerID = database.SanitizeString(req.CustomerID)

	preq := req.ToPaymentRequest()
	amount, err := payment.Validate(preq)
	if err != nil {
		return Ack{}, err
	}

	if req.ExternalReference != "" {
		key := idempotencyKey(req.TenantID, req.ExternalReference)
		if existing, err := a.idempotency.Load(ctx, key); err == nil {
			return a.ackFor(ctx, string(existing))
		} else if !errors.Is(err, state.ErrNotFound) {
			return Ack{}, svcerrors.ServiceUnavailable("idempotency_store", err)
		}
	}

	paymentID := req.PaymentID
	if paymentID == "" {
		paymentID = a.ids.NewSagaID()
	}

	now := a.clock.Now()
	p := payment.New(paymentID, preq, amount, now)

	inst := &saga.Instance{
		SagaID: p.PaymentID, TenantID: p.TenantID, BusinessUnitID: p.BusinessUnitID,
		PaymentID: p.PaymentID, CustomerID: p.CustomerID, PaymentType: string(p.PaymentType),
		AmountMinor: p.Amount.Minor, Currency: p.Amount.Currency,
		DebitAccountRef: p.DebitAccountRef, CreditAccountRef: p.CreditAccountRef,
		Status: saga.StatusInitiated, Deadline: now.Add(a.sagaDeadline),
		CreatedAt: now, UpdatedAt: now,
	}

	if req.ExternalReference != "" {
		key := idempotencyKey(req.TenantID, req.ExternalReference)
		claimed, err := a.idempotency.SaveIfAbsent(ctx, key, []byte(paymentID))
		if err != nil {
			return Ack{}, svcerrors.ServiceUnavailable("idempotency_store", err)
		}
		if !claimed {
			// Lost the race to a concurrent submit of the same reference.
			existing, err := a.idempotency.Load(ctx, key)
			if err != nil {
				return Ack{}, svcerrors.ServiceUnavailable("idempotency_store", err)
			}
			return a.ackFor(ctx, string(existing))
		}
	}

	if err := a.store.Put(ctx, inst); err != nil {
		return Ack{}, err
	}
	if a.logger != nil {
		a.logger.LogAuditEvent("submit_payment", "payment", inst.SagaID, "accepted")
	}

	if a.driveSynchronously {
		status, err := a.orchestrator.Run(ctx, inst.SagaID)
		if err != nil {
			if a.logger != nil {
				a.logger.WithSagaID(inst.SagaID).WithError(err).Warn("app: synchronous drive failed")
			}
			return Ack{PaymentID: inst.SagaID, Status: inst.Status}, nil
		}
		return Ack{PaymentID: inst.SagaID, Status: status}, nil
	}

	return Ack{PaymentID: inst.SagaID, Status: inst.Status}, nil
}

func (a *Application) ackFor(ctx context.Context, paymentID string) (Ack, error) {
	inst, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return Ack{}, err
	}
	return Ack{PaymentID: inst.SagaID, Status: inst.Status}, nil
}

// CancelPayment attempts to cancel paymentID, per §4.8's cancellation
// policy: accepted if the saga has not yet submitted to clearing,
// rejected (ErrCancelRejected surfaced as Outcome.Accepted=false) once it
// has, since the rail may already consider the payment irrevocable.
func (a *Application) CancelPayment(ctx context.Context, tenantID, paymentID string) (Outcome, error) {
	if err := database.ValidateID("payment_id", paymentID); err != nil {
		return Outcome{}, err
	}
	inst, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return Outcome{}, err
	}
	if inst.TenantID != tenantID {
		return Outcome{}, svcerrors.Authorization(tenantID, "payment belongs to a different tenant")
	}

	status, err := a.orchestrator.Cancel(ctx, paymentID)
	if err != nil {
		if errors.Is(err, saga.ErrCancelRejected) {
			if a.logger != nil {
				a.logger.LogAuditEvent("cancel_payment", "payment", paymentID, "rejected")
			}
			return Outcome{PaymentID: paymentID, Status: status, Accepted: false, Reason: "payment already submitted to clearing"}, nil
		}
		if errors.Is(err, saga.ErrLeaseHeld) {
			return Outcome{PaymentID: paymentID, Status: status, Accepted: false, Reason: "payment is currently being processed, retry cancellation shortly"}, nil
		}
		return Outcome{}, err
	}
	if a.logger != nil {
		a.logger.LogAuditEvent("cancel_payment", "payment", paymentID, "accepted")
	}
	return Outcome{PaymentID: paymentID, Status: status, Accepted: true}, nil
}

// QueryStatus returns paymentID's current status and the last event seq
// recorded against it.
func (a *Application) QueryStatus(ctx context.Context, tenantID, paymentID string) (StatusView, error) {
	if err := database.ValidateID("payment_id", paymentID); err != nil {
		return StatusView{}, err
	}
	inst, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return StatusView{}, err
	}
	if inst.TenantID != tenantID {
		return StatusView{}, svcerrors.Authorization(tenantID, "payment belongs to a different tenant")
	}
	return StatusView{PaymentID: inst.PaymentID, Status: inst.Status, LastSeq: inst.Seq}, nil
}
