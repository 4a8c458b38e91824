package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paymentflow/core/domain/saga"
	"github.com/paymentflow/core/domain/tenant"
)

// SagaRepository persists saga.Instance aggregates to the saga_instances
// table. Put is also the transactional commit point for the accompanying
// TransactionEvent: the orchestrator's outbox append and the instance
// mutation share one sqlx transaction here, matching the outbox pattern
// described in domain/event.Store's doc comment.
type SagaRepository struct {
	db *sqlx.DB
}

// NewSagaRepository wires a SagaRepository over db.
func NewSagaRepository(db *sqlx.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

type sagaRow struct {
	SagaID            string         `db:"saga_id"`
	TenantID          string         `db:"tenant_id"`
	BusinessUnitID    string         `db:"business_unit_id"`
	PaymentID         string         `db:"payment_id"`
	CustomerID        string         `db:"customer_id"`
	PaymentType       string         `db:"payment_type"`
	AmountMinor       int64          `db:"amount_minor"`
	Currency          string         `db:"currency"`
	DebitAccountRef   string         `db:"debit_account_ref"`
	CreditAccountRef  string         `db:"credit_account_ref"`
	Status            string         `db:"status"`
	CurrentStep       int            `db:"current_step"`
	CompletedSteps    []byte         `db:"completed_steps"`
	CompensationStack []byte         `db:"compensation_stack"`
	AttemptCounts     []byte         `db:"attempt_counts"`
	ReservationID     string         `db:"reservation_id"`
	HoldRef           string         `db:"hold_ref"`
	ClearingSystem    string         `db:"clearing_system"`
	ClearingRef       string         `db:"clearing_ref"`
	FailureReason     string         `db:"failure_reason"`
	FailureCause      string         `db:"failure_cause"`
	PendingTerminal   string         `db:"pending_terminal"`
	Seq               int64          `db:"seq"`
	DeadlineAt        sql.NullTime   `db:"deadline_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func rowFromInstance(inst *saga.Instance) (sagaRow, error) {
	steps, err := json.Marshal(inst.CompletedSteps)
	if err != nil {
		return sagaRow{}, fmt.Errorf("postgres: encoding completed_steps: %w", err)
	}
	stack, err := json.Marshal(inst.CompensationStack)
	if err != nil {
		return sagaRow{}, fmt.Errorf("postgres: encoding compensation_stack: %w", err)
	}
	attempts, err := json.Marshal(inst.AttemptCounts)
	if err != nil {
		return sagaRow{}, fmt.Errorf("postgres: encoding attempt_counts: %w", err)
	}
	row := sagaRow{
		SagaID: inst.SagaID, TenantID: inst.TenantID, BusinessUnitID: inst.BusinessUnitID,
		PaymentID: inst.PaymentID, CustomerID: inst.CustomerID, PaymentType: inst.PaymentType,
		AmountMinor: inst.AmountMinor, Currency: inst.Currency,
		DebitAccountRef: inst.DebitAccountRef, CreditAccountRef: inst.CreditAccountRef,
		Status: string(inst.Status), CurrentStep: inst.CurrentStep,
		CompletedSteps: steps, CompensationStack: stack, AttemptCounts: attempts,
		ReservationID: inst.ReservationID, HoldRef: inst.HoldRef,
		ClearingSystem: inst.ClearingSystem, ClearingRef: inst.ClearingRef,
		FailureReason: inst.FailureReason, FailureCause: inst.FailureCause,
		PendingTerminal: string(inst.PendingTerminal), Seq: inst.Seq,
		CreatedAt: inst.CreatedAt, UpdatedAt: inst.UpdatedAt,
	}
	if !inst.Deadline.IsZero() {
		row.DeadlineAt = sql.NullTime{Time: inst.Deadline, Valid: true}
	}
	return row, nil
}

func (r sagaRow) toInstance() (*saga.Instance, error) {
	var steps []string
	if err := json.Unmarshal(r.CompletedSteps, &steps); err != nil {
		return nil, fmt.Errorf("postgres: decoding completed_steps: %w", err)
	}
	var stack []saga.CompensationEntry
	if err := json.Unmarshal(r.CompensationStack, &stack); err != nil {
		return nil, fmt.Errorf("postgres: decoding compensation_stack: %w", err)
	}
	var attempts map[string]int
	if len(r.AttemptCounts) > 0 {
		if err := json.Unmarshal(r.AttemptCounts, &attempts); err != nil {
			return nil, fmt.Errorf("postgres: decoding attempt_counts: %w", err)
		}
	}
	inst := &saga.Instance{
		SagaID: r.SagaID, TenantID: r.TenantID, BusinessUnitID: r.BusinessUnitID,
		PaymentID: r.PaymentID, CustomerID: r.CustomerID, PaymentType: r.PaymentType,
		AmountMinor: r.AmountMinor, Currency: r.Currency,
		DebitAccountRef: r.DebitAccountRef, CreditAccountRef: r.CreditAccountRef,
		Status: saga.Status(r.Status), CurrentStep: r.CurrentStep,
		CompletedSteps: steps, CompensationStack: stack, AttemptCounts: attempts,
		ReservationID: r.ReservationID, HoldRef: r.HoldRef,
		ClearingSystem: r.ClearingSystem, ClearingRef: r.ClearingRef,
		FailureReason: r.FailureReason, FailureCause: r.FailureCause,
		PendingTerminal: saga.Status(r.PendingTerminal), Seq: r.Seq,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.DeadlineAt.Valid {
		inst.Deadline = r.DeadlineAt.Time
	}
	return inst, nil
}

// Get loads the instance for sagaID, returning saga.ErrNotFound if absent.
func (r *SagaRepository) Get(ctx context.Context, sagaID string) (*saga.Instance, error) {
	var row sagaRow
	err := r.db.GetContext(ctx, &row, `
		SELECT saga_id, tenant_id, business_unit_id, payment_id, customer_id, payment_type,
		       amount_minor, currency, debit_account_ref, credit_account_ref, status, current_step,
		       completed_steps, compensation_stack, attempt_counts, reservation_id, hold_ref, clearing_system,
		       clearing_ref, failure_reason, failure_cause, pending_terminal, seq, deadline_at,
		       created_at, updated_at
		FROM saga_instances WHERE saga_id = $1
	`, sagaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: loading saga %s: %w", sagaID, err)
	}
	return row.toInstance()
}

// GetForTenant loads the instance for sagaID, enforcing that it belongs to
// caller's tenant — the row-level isolation check every tenant-scoped read
// in this package applies before returning data to a caller.
func (r *SagaRepository) GetForTenant(ctx context.Context, caller tenant.Context, sagaID string) (*saga.Instance, error) {
	inst, err := r.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	guard := tenant.NewGuard(caller)
	if err := guard.Check(inst.TenantID); err != nil {
		return nil, err
	}
	return inst, nil
}

// Put upserts inst. Callers that also need to append a TransactionEvent in
// the same transaction should use PutWithEvent instead; Put alone commits
// business state without an accompanying outbox row.
func (r *SagaRepository) Put(ctx context.Context, inst *saga.Instance) error {
	row, err := rowFromInstance(inst)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, sagaUpsertSQL, row)
	if err != nil {
		return fmt.Errorf("postgres: upserting saga %s: %w", inst.SagaID, err)
	}
	return nil
}

// PutWithEvent upserts inst and appends ev atomically, in the same
// transaction — the outbox-commit-boundary guarantee §4.2 requires: the
// event is visible to the publisher if and only if the saga mutation
// committed.
func (r *SagaRepository) PutWithEvent(ctx context.Context, inst *saga.Instance, ev *eventRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := rowFromInstance(inst)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, sagaUpsertSQL, row); err != nil {
		return fmt.Errorf("postgres: upserting saga %s: %w", inst.SagaID, err)
	}
	if ev != nil {
		if err := insertEvent(ctx, tx, *ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const sagaUpsertSQL = `
	INSERT INTO saga_instances (
		saga_id, tenant_id, business_unit_id, payment_id, customer_id, payment_type,
		amount_minor, currency, debit_account_ref, credit_account_ref, status, current_step,
		completed_steps, compensation_stack, attempt_counts, reservation_id, hold_ref, clearing_system,
		clearing_ref, failure_reason, failure_cause, pending_terminal, seq, deadline_at,
		created_at, updated_at
	) VALUES (
		:saga_id, :tenant_id, :business_unit_id, :payment_id, :customer_id, :payment_type,
		:amount_minor, :currency, :debit_account_ref, :credit_account_ref, :status, :current_step,
		:completed_steps, :compensation_stack, :attempt_counts, :reservation_id, :hold_ref, :clearing_system,
		:clearing_ref, :failure_reason, :failure_cause, :pending_terminal, :seq, :deadline_at,
		:created_at, :updated_at
	)
	ON CONFLICT (saga_id) DO UPDATE SET
		status = EXCLUDED.status, current_step = EXCLUDED.current_step,
		completed_steps = EXCLUDED.completed_steps, compensation_stack = EXCLUDED.compensation_stack,
		attempt_counts = EXCLUDED.attempt_counts,
		reservation_id = EXCLUDED.reservation_id, hold_ref = EXCLUDED.hold_ref,
		clearing_system = EXCLUDED.clearing_system, clearing_ref = EXCLUDED.clearing_ref,
		failure_reason = EXCLUDED.failure_reason, failure_cause = EXCLUDED.failure_cause,
		pending_terminal = EXCLUDED.pending_terminal, seq = EXCLUDED.seq,
		deadline_at = EXCLUDED.deadline_at, updated_at = EXCLUDED.updated_at
`

// ListActive returns every non-terminal instance, up to limit rows (0 means
// unbounded). Terminal statuses are excluded in SQL rather than filtered
// after the fact so the redrive sweep never pages through settled sagas.
func (r *SagaRepository) ListActive(ctx context.Context, limit int) ([]*saga.Instance, error) {
	query := `
		SELECT saga_id, tenant_id, business_unit_id, payment_id, customer_id, payment_type,
		       amount_minor, currency, debit_account_ref, credit_account_ref, status, current_step,
		       completed_steps, compensation_stack, attempt_counts, reservation_id, hold_ref, clearing_system,
		       clearing_ref, failure_reason, failure_cause, pending_terminal, seq, deadline_at,
		       created_at, updated_at
		FROM saga_instances
		WHERE status NOT IN ('COMPLETED', 'FAILED', 'TIMED_OUT', 'REJECTED')
		ORDER BY updated_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	var rows []sagaRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: listing active sagas: %w", err)
	}
	out := make([]*saga.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := row.toInstance()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

var _ saga.Store = (*SagaRepository)(nil)
