// Package fraud implements the Fraud Toggle & Score component (C7):
// multi-level enable/disable resolution plus score-based decisioning with a
// tenant-configurable fallback when the external scorer is unavailable.
package fraud

import "time"

// ToggleConfig is a multi-level switch. Any of PaymentType, LocalInstrument,
// or ClearingSystem may be empty (a wildcard at that level); the most
// specific currently-effective active row wins.
type ToggleConfig struct {
	TenantID        string
	PaymentType     string
	LocalInstrument string
	ClearingSystem  string
	IsEnabled       bool
	Priority        int
	EffectiveFrom   *time.Time
	EffectiveTo     *time.Time
	Reason          string
	Status          string // ACTIVE | INACTIVE
}

// specificity counts non-empty match keys: more specific rows outrank less
// specific ones regardless of insertion order or any single ORDER BY clause,
// so the same resolution logic runs identically against Postgres rows or an
// in-memory fake.
func (c ToggleConfig) specificity() int {
	n := 0
	if c.PaymentType != "" {
		n++
	}
	if c.LocalInstrument != "" {
		n++
	}
	if c.ClearingSystem != "" {
		n++
	}
	return n
}

func (c ToggleConfig) matches(paymentType, localInstrument, clearingSystem string) bool {
	if c.PaymentType != "" && c.PaymentType != paymentType {
		return false
	}
	if c.LocalInstrument != "" && c.LocalInstrument != localInstrument {
		return false
	}
	if c.ClearingSystem != "" && c.ClearingSystem != clearingSystem {
		return false
	}
	return true
}

func (c ToggleConfig) isEffective(now time.Time) bool {
	if c.Status != "ACTIVE" {
		return false
	}
	if c.EffectiveFrom != nil && now.Before(*c.EffectiveFrom) {
		return false
	}
	if c.EffectiveTo != nil && !now.Before(*c.EffectiveTo) {
		return false
	}
	return true
}

// ResolveToggle returns whether fraud scoring is enabled for
// (tenant_id, payment_type, local_instrument, clearing_system), picking the
// most specific currently-effective active candidate. Absent any matching
// row, the default is enabled.
func ResolveToggle(candidates []ToggleConfig, paymentType, localInstrument, clearingSystem string, now time.Time) bool {
	best := -1
	enabled := true
	for _, c := range candidates {
		if !c.isEffective(now) || !c.matches(paymentType, localInstrument, clearingSystem) {
			continue
		}
		if s := c.specificity(); s > best {
			best = s
			enabled = c.IsEnabled
		}
	}
	return enabled
}
