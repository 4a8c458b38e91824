package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paymentflow/core/domain/event"
)

// OutboxRepository implements event.Store on the transaction_events table,
// the Postgres side of the outbox pattern: Append happens inside whatever
// transaction the caller's business mutation is already in (see
// SagaRepository.PutWithEvent for the saga-step call site), and
// ListUnpublished/MarkPublished/MarkAttempt back the standalone Publisher.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository wires an OutboxRepository over db.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

type eventRow struct {
	EventID        string `db:"event_id"`
	SagaID         string `db:"saga_id"`
	Seq            int64  `db:"seq"`
	Type           string `db:"type"`
	Payload        []byte    `db:"payload"`
	OccurredAt     time.Time `db:"occurred_at"`
	CorrelationID  string `db:"correlation_id"`
	CausationID    string `db:"causation_id"`
	TenantID       string `db:"tenant_id"`
	BusinessUnitID string `db:"business_unit_id"`
	Status         string `db:"status"`
	PublishAttempt int    `db:"publish_attempt"`
}

func toEventRow(ev event.TransactionEvent) (eventRow, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return eventRow{}, fmt.Errorf("postgres: encoding event payload: %w", err)
	}
	return eventRow{
		EventID: ev.EventID, SagaID: ev.SagaID, Seq: ev.Seq, Type: string(ev.Type),
		Payload: payload, OccurredAt: ev.OccurredAt,
		CorrelationID: ev.CorrelationID, CausationID: ev.CausationID,
		TenantID: ev.TenantID, BusinessUnitID: ev.BusinessUnitID,
		Status: string(ev.Status), PublishAttempt: ev.PublishAttempt,
	}, nil
}

// insertEvent runs inside a caller-managed transaction; SagaRepository.PutWithEvent
// uses it to share the saga upsert's transaction. Append issues the same
// INSERT directly on the pool rather than through this helper.
func insertEvent(ctx context.Context, tx *sqlx.Tx, row eventRow) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO transaction_events (
			event_id, saga_id, seq, type, payload, occurred_at, correlation_id,
			causation_id, tenant_id, business_unit_id, status, publish_attempt
		) VALUES (
			:event_id, :saga_id, :seq, :type, :payload, :occurred_at, :correlation_id,
			:causation_id, :tenant_id, :business_unit_id, :status, :publish_attempt
		)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: inserting event %s: %w", row.EventID, err)
	}
	return nil
}

// Append persists ev directly (outside any caller-managed transaction). The
// database's unique (saga_id, seq) index is what actually enforces the
// monotonicity invariant; a violation surfaces as a Postgres unique-
// violation error here.
func (r *OutboxRepository) Append(ctx context.Context, ev event.TransactionEvent) error {
	row, err := toEventRow(ev)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO transaction_events (
			event_id, saga_id, seq, type, payload, occurred_at, correlation_id,
			causation_id, tenant_id, business_unit_id, status, publish_attempt
		) VALUES (
			:event_id, :saga_id, :seq, :type, :payload, :occurred_at, :correlation_id,
			:causation_id, :tenant_id, :business_unit_id, :status, :publish_attempt
		)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: appending event %s: %w", ev.EventID, err)
	}
	return nil
}

// ListUnpublished returns UNPUBLISHED or RETRY-eligible events in
// (saga_id, seq) order, honoring the outbox's ordering guarantee that
// consumers never see a later-seq event for a saga before an earlier one.
func (r *OutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]event.TransactionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT event_id, saga_id, seq, type, payload, occurred_at, correlation_id,
		       causation_id, tenant_id, business_unit_id, status, publish_attempt
		FROM transaction_events
		WHERE status = 'UNPUBLISHED'
		ORDER BY saga_id, seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing unpublished events: %w", err)
	}
	out := make([]event.TransactionEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (row eventRow) toEvent() (event.TransactionEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return event.TransactionEvent{}, fmt.Errorf("postgres: decoding event payload: %w", err)
	}
	return event.TransactionEvent{
		EventID: row.EventID, SagaID: row.SagaID, Seq: row.Seq, Type: event.Type(row.Type),
		Payload: payload, OccurredAt: row.OccurredAt, CorrelationID: row.CorrelationID,
		CausationID: row.CausationID, TenantID: row.TenantID, BusinessUnitID: row.BusinessUnitID,
		Status: event.Status(row.Status), PublishAttempt: row.PublishAttempt,
	}, nil
}

// MarkPublished transitions eventID to PUBLISHED.
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transaction_events SET status = 'PUBLISHED' WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("postgres: marking event %s published: %w", eventID, err)
	}
	return nil
}

// MarkAttempt increments the publish-attempt counter, transitioning the
// event to POISON once the count reaches maxAttempts so a permanently failing
// sink stops being retried silently forever.
func (r *OutboxRepository) MarkAttempt(ctx context.Context, eventID string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transaction_events
		SET publish_attempt = publish_attempt + 1,
		    status = CASE WHEN publish_attempt + 1 >= $2 THEN 'POISON' ELSE status END
		WHERE event_id = $1
	`, eventID, maxAttempts)
	if err != nil {
		return fmt.Errorf("postgres: recording publish attempt for %s: %w", eventID, err)
	}
	return nil
}

var _ event.Store = (*OutboxRepository)(nil)
