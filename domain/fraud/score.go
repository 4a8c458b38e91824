package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/paymentflow/core/domain/limit"
)

// Decision is the outcome of scoring a payment for fraud risk.
type Decision string

const (
	DecisionApprove              Decision = "APPROVE"
	DecisionApproveWithMonitoring Decision = "APPROVE_WITH_MONITORING"
	DecisionRequireVerification   Decision = "REQUIRE_VERIFICATION"
	DecisionReject                Decision = "REJECT"
)

// bandFor maps a raw [0,1] score to its Decision by threshold band:
// LOW ≤0.3, MEDIUM 0.3–0.6, HIGH 0.6–0.8, CRITICAL >0.8.
func bandFor(score float64) Decision {
	switch {
	case score <= 0.3:
		return DecisionApprove
	case score <= 0.6:
		return DecisionApproveWithMonitoring
	case score <= 0.8:
		return DecisionRequireVerification
	default:
		return DecisionReject
	}
}

// ScoreRequest is what the score provider evaluates.
type ScoreRequest struct {
	TenantID    string
	CustomerID  string
	PaymentID   string
	PaymentType string
	AmountMinor int64
	Currency    string
}

// Provider is the external fraud scorer contract (one instance of
// contracts.FraudScoreProvider).
type Provider interface {
	Score(ctx context.Context, req ScoreRequest) (float64, error)
}

// FallbackStrategy governs behavior when the external scorer is unavailable.
type FallbackStrategy string

const (
	FallbackFailOpen   FallbackStrategy = "FAIL_OPEN"
	FallbackFailClosed FallbackStrategy = "FAIL_CLOSED"
	FallbackRuleBased  FallbackStrategy = "RULE_BASED"
)

// Evaluator scores a payment, consulting the configured toggle and applying
// the tenant's fallback strategy if the provider errors.
type Evaluator struct {
	provider    Provider
	limitStore  limit.Store
	velocityCap int64 // per-day minor-unit threshold the rule-based fallback scores against
}

// NewEvaluator wires an Evaluator. limitStore may be nil if no tenant uses
// FallbackRuleBased.
func NewEvaluator(provider Provider, limitStore limit.Store, velocityCap int64) *Evaluator {
	return &Evaluator{provider: provider, limitStore: limitStore, velocityCap: velocityCap}
}

// Evaluate resolves the toggle for the request's dimensions; if disabled, it
// returns APPROVE without calling the provider. If enabled, it scores via
// the provider, falling back per strategy on error.
func (e *Evaluator) Evaluate(ctx context.Context, req ScoreRequest, toggles []ToggleConfig, localInstrument, clearingSystem string, now time.Time, fallback FallbackStrategy) (Decision, float64, error) {
	if !ResolveToggle(toggles, req.PaymentType, localInstrument, clearingSystem, now) {
		return DecisionApprove, 0, nil
	}

	score, err := e.provider.Score(ctx, req)
	if err == nil {
		return bandFor(score), score, nil
	}

	switch fallback {
	case FallbackFailOpen:
		return DecisionApproveWithMonitoring, 0, nil
	case FallbackFailClosed:
		return DecisionReject, 1, nil
	case FallbackRuleBased:
		return e.ruleBasedScore(ctx, req, now)
	default:
		return "", 0, fmt.Errorf("fraud: unknown fallback strategy %q", fallback)
	}
}

// ruleBasedScore computes a velocity/amount score from the limit engine's
// own bucket reads: today's spend-so-far relative to velocityCap, blended
// with the single transaction's own share of that cap. It needs no new
// external dependency — it is a read against data C4 already maintains.
func (e *Evaluator) ruleBasedScore(ctx context.Context, req ScoreRequest, now time.Time) (Decision, float64, error) {
	if e.limitStore == nil {
		return DecisionApproveWithMonitoring, 0, fmt.Errorf("fraud: rule-based fallback requires a limit store")
	}
	key := limit.DailyKey(req.TenantID, req.CustomerID, now, time.UTC)
	counter, err := e.limitStore.GetCounter(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("fraud: reading velocity counter: %w", err)
	}

	if e.velocityCap <= 0 {
		return DecisionApproveWithMonitoring, 0, nil
	}
	projected := counter.UsedMinor + req.AmountMinor
	score := float64(projected) / float64(e.velocityCap)
	if score > 1 {
		score = 1
	}
	return bandFor(score), score, nil
}
