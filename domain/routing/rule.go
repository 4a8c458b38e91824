// Package routing implements the Routing Engine (C6): priority-ordered,
// condition/action rule evaluation producing a clearing-system selection
// with deterministic tie-breaks.
package routing

import "time"

// Operator is one of the comparison operators a rule condition supports.
type Operator string

const (
	OpEquals       Operator = "="
	OpNotEquals    Operator = "≠"
	OpLessThan     Operator = "<"
	OpLessOrEqual  Operator = "≤"
	OpGreaterThan  Operator = ">"
	OpGreaterEqual Operator = "≥"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpMatchesRegex Operator = "matches_regex"
)

// Condition is one clause of a rule, composing with AND within the rule.
type Condition struct {
	Field string
	Op    Operator
	Value interface{}
	Order int
}

// ActionType enumerates what a matched rule's action produces. ActionRoute
// is the only one this engine interprets; others are opaque payloads a
// downstream consumer of the Decision may act on.
type ActionType string

const (
	ActionRoute ActionType = "ROUTE"
)

// Action is one effect of a matched rule.
type Action struct {
	Type            ActionType
	ClearingSystem  string
	RoutingPriority int
	IsPrimary       bool
}

// Status is a RoutingRule's lifecycle state; only ACTIVE rules within their
// effective window participate in evaluation.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDraft    Status = "DRAFT"
)

// Rule is a tenant-scoped selection rule. Lower Priority evaluates earlier;
// ties break on RuleID ascending, so evaluation order is always
// deterministic regardless of storage order.
type Rule struct {
	RuleID         string
	TenantID       string
	BusinessUnitID string // empty means "tenant-level fallback"
	Priority       int
	Conditions     []Condition
	Actions        []Action
	EffectiveFrom  *time.Time
	EffectiveTo    *time.Time
	Status         Status
}

// IsEffective reports whether the rule participates in evaluation at now:
// status ACTIVE and within [EffectiveFrom, EffectiveTo).
func (r Rule) IsEffective(now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.EffectiveFrom != nil && now.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !now.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// matchesBusinessUnit reports whether the rule applies to businessUnitID:
// an exact match, or a tenant-level rule (empty BusinessUnitID) as fallback.
func (r Rule) matchesBusinessUnit(businessUnitID string) bool {
	return r.BusinessUnitID == "" || r.BusinessUnitID == businessUnitID
}
