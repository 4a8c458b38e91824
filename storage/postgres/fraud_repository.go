package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/paymentflow/core/domain/fraud"
)

// FraudToggleRepository implements fraud.ToggleStore on fraud_toggle_configs.
// ResolveToggle itself picks the most specific effective row, so
// ListToggles need not filter or order anything beyond scoping to tenant_id.
type FraudToggleRepository struct {
	db *sqlx.DB
}

// NewFraudToggleRepository wires a FraudToggleRepository over db.
func NewFraudToggleRepository(db *sqlx.DB) *FraudToggleRepository {
	return &FraudToggleRepository{db: db}
}

type toggleRow struct {
	ID              string       `db:"id"`
	TenantID        string       `db:"tenant_id"`
	PaymentType     string       `db:"payment_type"`
	LocalInstrument string       `db:"local_instrument"`
	ClearingSystem  string       `db:"clearing_system"`
	IsEnabled       bool         `db:"is_enabled"`
	Priority        int          `db:"priority"`
	EffectiveFrom   sql.NullTime `db:"effective_from"`
	EffectiveTo     sql.NullTime `db:"effective_to"`
	Reason          string       `db:"reason"`
	Status          string       `db:"status"`
}

func (row toggleRow) toConfig() fraud.ToggleConfig {
	cfg := fraud.ToggleConfig{
		TenantID: row.TenantID, PaymentType: row.PaymentType, LocalInstrument: row.LocalInstrument,
		ClearingSystem: row.ClearingSystem, IsEnabled: row.IsEnabled, Priority: row.Priority,
		Reason: row.Reason, Status: row.Status,
	}
	if row.EffectiveFrom.Valid {
		t := row.EffectiveFrom.Time
		cfg.EffectiveFrom = &t
	}
	if row.EffectiveTo.Valid {
		t := row.EffectiveTo.Time
		cfg.EffectiveTo = &t
	}
	return cfg
}

func toToggleRow(cfg fraud.ToggleConfig) toggleRow {
	row := toggleRow{
		ID: uuid.NewString(), TenantID: cfg.TenantID, PaymentType: cfg.PaymentType,
		LocalInstrument: cfg.LocalInstrument, ClearingSystem: cfg.ClearingSystem,
		IsEnabled: cfg.IsEnabled, Priority: cfg.Priority, Reason: cfg.Reason, Status: cfg.Status,
	}
	if cfg.EffectiveFrom != nil {
		row.EffectiveFrom = sql.NullTime{Time: *cfg.EffectiveFrom, Valid: true}
	}
	if cfg.EffectiveTo != nil {
		row.EffectiveTo = sql.NullTime{Time: *cfg.EffectiveTo, Valid: true}
	}
	return row
}

// ListToggles returns every toggle row scoped to tenantID.
func (r *FraudToggleRepository) ListToggles(ctx context.Context, tenantID string) ([]fraud.ToggleConfig, error) {
	var rows []toggleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, payment_type, local_instrument, clearing_system,
		       is_enabled, priority, effective_from, effective_to, reason, status
		FROM fraud_toggle_configs WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing fraud toggles for tenant %s: %w", tenantID, err)
	}
	out := make([]fraud.ToggleConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toConfig())
	}
	return out, nil
}

// PutToggle inserts a new toggle row; it never updates an existing one, so
// ListToggles always reflects what was true at the time a given row was
// effective. ResolveToggle does not consult Priority: a new row overrides an
// older one only by being more specific, and among equally specific
// effective rows the first one ListToggles returns wins (its query has no
// ORDER BY).
func (r *FraudToggleRepository) PutToggle(ctx context.Context, cfg fraud.ToggleConfig) error {
	row := toToggleRow(cfg)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO fraud_toggle_configs (
			id, tenant_id, payment_type, local_instrument, clearing_system,
			is_enabled, priority, effective_from, effective_to, reason, status
		) VALUES (
			:id, :tenant_id, :payment_type, :local_instrument, :clearing_system,
			:is_enabled, :priority, :effective_from, :effective_to, :reason, :status
		)
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: inserting fraud toggle for tenant %s: %w", cfg.TenantID, err)
	}
	return nil
}

var _ fraud.ToggleStore = (*FraudToggleRepository)(nil)
