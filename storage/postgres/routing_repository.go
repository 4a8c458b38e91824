package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/paymentflow/core/domain/routing"
)

// RoutingRepository implements routing.Store on routing_rules. The engine
// evaluates rules in the order ListEffective returns them without re-sorting,
// so this query's ORDER BY (priority ASC, rule_id ASC) sets evaluation order.
type RoutingRepository struct {
	db *sqlx.DB
}

// NewRoutingRepository wires a RoutingRepository over db.
func NewRoutingRepository(db *sqlx.DB) *RoutingRepository {
	return &RoutingRepository{db: db}
}

type ruleRow struct {
	RuleID         string       `db:"rule_id"`
	TenantID       string       `db:"tenant_id"`
	BusinessUnitID string       `db:"business_unit_id"`
	Priority       int          `db:"priority"`
	Conditions     []byte       `db:"conditions"`
	Actions        []byte       `db:"actions"`
	EffectiveFrom  sql.NullTime `db:"effective_from"`
	EffectiveTo    sql.NullTime `db:"effective_to"`
	Status         string       `db:"status"`
}

func toRuleRow(r routing.Rule) (ruleRow, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return ruleRow{}, fmt.Errorf("postgres: encoding rule conditions: %w", err)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return ruleRow{}, fmt.Errorf("postgres: encoding rule actions: %w", err)
	}
	row := ruleRow{
		RuleID: r.RuleID, TenantID: r.TenantID, BusinessUnitID: r.BusinessUnitID,
		Priority: r.Priority, Conditions: conditions, Actions: actions, Status: string(r.Status),
	}
	if r.EffectiveFrom != nil {
		row.EffectiveFrom = sql.NullTime{Time: *r.EffectiveFrom, Valid: true}
	}
	if r.EffectiveTo != nil {
		row.EffectiveTo = sql.NullTime{Time: *r.EffectiveTo, Valid: true}
	}
	return row, nil
}

func (row ruleRow) toRule() (routing.Rule, error) {
	var conditions []routing.Condition
	if err := json.Unmarshal(row.Conditions, &conditions); err != nil {
		return routing.Rule{}, fmt.Errorf("postgres: decoding rule conditions: %w", err)
	}
	var actions []routing.Action
	if err := json.Unmarshal(row.Actions, &actions); err != nil {
		return routing.Rule{}, fmt.Errorf("postgres: decoding rule actions: %w", err)
	}
	r := routing.Rule{
		RuleID: row.RuleID, TenantID: row.TenantID, BusinessUnitID: row.BusinessUnitID,
		Priority: row.Priority, Conditions: conditions, Actions: actions, Status: routing.Status(row.Status),
	}
	if row.EffectiveFrom.Valid {
		t := row.EffectiveFrom.Time
		r.EffectiveFrom = &t
	}
	if row.EffectiveTo.Valid {
		t := row.EffectiveTo.Time
		r.EffectiveTo = &t
	}
	return r, nil
}

// ListEffective returns every rule for tenantID regardless of status or
// window; Engine.evaluateUncached filters on IsEffective itself.
func (r *RoutingRepository) ListEffective(ctx context.Context, tenantID string) ([]routing.Rule, error) {
	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT rule_id, tenant_id, business_unit_id, priority, conditions, actions,
		       effective_from, effective_to, status
		FROM routing_rules WHERE tenant_id = $1
		ORDER BY priority ASC, rule_id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing routing rules for tenant %s: %w", tenantID, err)
	}
	out := make([]routing.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Put upserts r, keyed by rule_id.
func (r *RoutingRepository) Put(ctx context.Context, rule routing.Rule) error {
	row, err := toRuleRow(rule)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO routing_rules (
			rule_id, tenant_id, business_unit_id, priority, conditions, actions,
			effective_from, effective_to, status
		) VALUES (
			:rule_id, :tenant_id, :business_unit_id, :priority, :conditions, :actions,
			:effective_from, :effective_to, :status
		)
		ON CONFLICT (rule_id) DO UPDATE SET
			business_unit_id = EXCLUDED.business_unit_id, priority = EXCLUDED.priority,
			conditions = EXCLUDED.conditions, actions = EXCLUDED.actions,
			effective_from = EXCLUDED.effective_from, effective_to = EXCLUDED.effective_to,
			status = EXCLUDED.status
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: upserting routing rule %s: %w", rule.RuleID, err)
	}
	return nil
}

var _ routing.Store = (*RoutingRepository)(nil)
