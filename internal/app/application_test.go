package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/domain/account"
	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/domain/contracts"
	"github.com/paymentflow/core/domain/event"
	"github.com/paymentflow/core/domain/fraud"
	"github.com/paymentflow/core/domain/limit"
	"github.com/paymentflow/core/domain/queue"
	"github.com/paymentflow/core/domain/routing"
	"github.com/paymentflow/core/domain/saga"
	"github.com/paymentflow/core/infrastructure/state"
)

type testRig struct {
	app      *Application
	store    *saga.MemoryStore
	clearing *contracts.FakeClearingChannel
}

func newTestRig(t *testing.T, now time.Time, synchronous bool) *testRig {
	t.Helper()
	c := clock.FixedClock{At: now}

	sagaStore := saga.NewMemoryStore()
	events := event.NewMemoryStore()

	leaseState, err := state.NewPersistentState(state.DefaultConfig())
	require.NoError(t, err)
	leases := saga.NewLeaseStore(leaseState, c)

	limitStore := limit.NewMemoryStore()
	limitEngine := limit.New(limitStore, limit.StaticConfigResolver{Config: limit.Config{
		DailyLimitMinor: 10_000_000, MonthlyLimitMinor: 50_000_000, CountDayLimit: 100,
	}}, c, time.UTC, nil)

	toggles := fraud.NewMemoryToggleStore()
	fraudEval := fraud.NewEvaluator(contracts.FakeFraudProvider{FixedScore: 0.1}, limitStore, 0)

	registry := account.NewRegistry()
	registry.Register(account.NewSyncBackend("debit-bank", 1_000_000_00), "DEBIT")
	registry.Register(account.NewSyncBackend("credit-bank", 0), "CREDIT")
	ledger, err := account.NewAdapter(registry, 16, time.Minute, queue.NewMemoryStore())
	require.NoError(t, err)

	routeStore := routing.NewMemoryStore()
	routeEngine := routing.NewEngine(routeStore, nil, c)
	routeEngine.SetDefault("T1", "RTC")

	clearing := contracts.NewFakeClearingChannel(false)

	orchestrator := saga.NewOrchestrator(sagaStore, leases, events, c, "worker-1", time.Minute, 0,
		&saga.FraudEvalStep{Evaluator: fraudEval, Toggles: toggles, Fallback: fraud.FallbackFailOpen, Clock: c},
		&saga.LimitReserveStep{Engine: limitEngine},
		&saga.FundsHoldStep{Ledger: ledger},
		&saga.RouteSelectStep{Engine: routeEngine, Context: func(inst *saga.Instance) routing.Context {
			return routing.Context{TenantID: inst.TenantID, PaymentType: inst.PaymentType, AmountMinor: inst.AmountMinor, Currency: inst.Currency}
		}},
		&saga.ClearingSubmitStep{Channel: clearing},
		&saga.AwaitClearingStep{Channel: clearing},
		&saga.LedgerPostStep{Ledger: ledger, LimitEngine: limitEngine},
	)

	idemState, err := state.NewPersistentState(state.DefaultConfig())
	require.NoError(t, err)
	ids := clock.NewIDService(c)

	var opts []Option
	if synchronous {
		opts = append(opts, WithSynchronousDrive())
	}
	application := New(sagaStore, orchestrator, ids, c, idemState, opts...)

	return &testRig{app: application, store: sagaStore, clearing: clearing}
}

func validRequest() contracts.PaymentRequest {
	return contracts.PaymentRequest{
		TenantID: "T1", BusinessUnitID: "BU1", CustomerID: "C1",
		DebitAccountRef: "DEBIT-1", CreditAccountRef: "CREDIT-1",
		ExternalReference: "ext-ref-1",
		AmountDecimal:     "500.00", Currency: "ZAR", PaymentType: "RTC",
	}
}

func TestSubmitPayment_CreatesSaga(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, false)

	ack, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, ack.PaymentID)
	assert.Equal(t, saga.StatusInitiated, ack.Status)

	inst, err := rig.store.Get(ctx, ack.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "T1", inst.TenantID)
	assert.Equal(t, int64(50_000), inst.AmountMinor)
}

func TestSubmitPayment_RejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, time.Now().UTC(), false)

	req := validRequest()
	req.AmountDecimal = "0.00"
	_, err := rig.app.SubmitPayment(ctx, req)
	require.Error(t, err)
}

func TestSubmitPayment_IdempotentOnExternalReference(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, false)

	first, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)

	second, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	all, err := rig.store.ListActive(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSubmitPayment_SynchronousDriveSuspendsAtAwaitingClearing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, true)

	req := validRequest()
	// No clearing outcome is programmed for the generated payment_id, so the
	// driven saga finds await_clearing still pending.
	ack, err := rig.app.SubmitPayment(ctx, req)
	require.NoError(t, err)
	// Without a programmed outcome the synchronous drive suspends at
	// AWAITING_CLEARING, which is itself a valid terminal point for this
	// call since Run only loops until suspension or a terminal status.
	assert.Equal(t, saga.StatusAwaitingClearing, ack.Status)
}

func TestQueryStatus_ReturnsCurrentStatusAndSeq(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, false)

	ack, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)

	view, err := rig.app.QueryStatus(ctx, "T1", ack.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusInitiated, view.Status)
	assert.Equal(t, int64(0), view.LastSeq)
}

func TestQueryStatus_RejectsCrossTenantAccess(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, false)

	ack, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)

	_, err = rig.app.QueryStatus(ctx, "T-other", ack.PaymentID)
	require.Error(t, err)
}

func TestCancelPayment_AcceptsBeforeClearingSubmission(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, false)

	ack, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)

	outcome, err := rig.app.CancelPayment(ctx, "T1", ack.PaymentID)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, saga.StatusRejected, outcome.Status)
}

func TestCancelPayment_RejectsAfterClearingSubmission(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, true)

	ack, err := rig.app.SubmitPayment(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, saga.StatusAwaitingClearing, ack.Status)

	outcome, err := rig.app.CancelPayment(ctx, "T1", ack.PaymentID)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}
