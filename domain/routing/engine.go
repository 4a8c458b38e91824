package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/paymentflow/core/infrastructure/cache"
	"github.com/paymentflow/core/domain/clock"
)

// Decision is the outcome of evaluating a tenant's rule set against a
// Context: the first matching rule's primary ROUTE action (the first one
// marked IsPrimary, else its first ROUTE action), plus the rule that
// produced it for audit logging.
type Decision struct {
	ClearingSystem  string
	RoutingPriority int
	RuleID          string
}

// ErrNoMatch is returned when no effective rule matches the context and no
// default has been configured.
var ErrNoMatch = fmt.Errorf("routing: no rule matched and no default is configured")

// Engine evaluates a tenant's routing rules in priority order, caching
// decisions keyed by (tenant_id, hash(context)) so repeat calls with an
// identical context skip re-evaluation entirely.
type Engine struct {
	store    Store
	cache    cache.TypedCache[Decision]
	clock    clock.Clock
	defaults map[string]string // tenant_id -> default clearing system
}

// NewEngine wires an Engine over store, caching decisions in c, an
// in-process cache.Cache. Single-process deployments use this; HA
// deployments that need decisions shared fleet-wide use
// NewEngineWithCache with a cache.RedisTypedCache instead.
func NewEngine(store Store, c *cache.Cache, clk clock.Clock) *Engine {
	var typed cache.TypedCache[Decision]
	if c != nil {
		typed = cache.NewMemoryTypedCache[Decision](c)
	}
	return &Engine{store: store, cache: typed, clock: clk, defaults: make(map[string]string)}
}

// NewEngineWithCache wires an Engine over an arbitrary TypedCache[Decision]
// implementation, e.g. cache.RedisTypedCache for multi-process decision
// cache sharing with invalidate-on-write still working via InvalidateVersion.
func NewEngineWithCache(store Store, c cache.TypedCache[Decision], clk clock.Clock) *Engine {
	return &Engine{store: store, cache: c, clock: clk, defaults: make(map[string]string)}
}

// SetDefault registers the clearing system used when no rule matches for
// tenantID, instead of returning ErrNoMatch.
func (e *Engine) SetDefault(tenantID, clearingSystem string) {
	e.defaults[tenantID] = clearingSystem
}

// Evaluate returns the routing Decision for ctx, consulting the cache first.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, rctx Context) (Decision, error) {
	key, err := cacheKey(tenantID, rctx)
	if err != nil {
		return Decision{}, err
	}
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v, nil
		}
	}

	decision, err := e.evaluateUncached(ctx, tenantID, rctx)
	if err != nil {
		return Decision{}, err
	}
	if e.cache != nil {
		e.cache.Set(key, decision, 0)
	}
	return decision, nil
}

func (e *Engine) evaluateUncached(ctx context.Context, tenantID string, rctx Context) (Decision, error) {
	rules, err := e.store.ListEffective(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("routing: loading rules: %w", err)
	}

	now := e.clock.Now()
	for _, r := range rules {
		if !r.IsEffective(now) || !r.matchesBusinessUnit(rctx.BusinessUnitID) {
			continue
		}
		matched, err := evaluate(r.Conditions, rctx)
		if err != nil {
			return Decision{}, err
		}
		if !matched {
			continue
		}
		if action, ok := primaryRouteAction(r.Actions); ok {
			return Decision{ClearingSystem: action.ClearingSystem, RoutingPriority: action.RoutingPriority, RuleID: r.RuleID}, nil
		}
	}

	if def, ok := e.defaults[tenantID]; ok {
		return Decision{ClearingSystem: def, RuleID: ""}, nil
	}
	return Decision{}, ErrNoMatch
}

// InvalidateTenant drops every cached decision, since the cache does not key
// by rule-set version; any rule mutation calls this rather than scanning for
// the tenant's entries individually.
func (e *Engine) InvalidateTenant(tenantID string) {
	if e.cache != nil {
		e.cache.InvalidateVersion()
	}
}

func primaryRouteAction(actions []Action) (Action, bool) {
	var best Action
	found := false
	for _, a := range actions {
		if a.Type != ActionRoute {
			continue
		}
		if !found || a.IsPrimary && !best.IsPrimary {
			best = a
			found = true
		}
	}
	return best, found
}

// cacheKey derives a deterministic cache key from (tenant_id, context) via a
// blake2b-256 hash of the context's canonical JSON encoding, so the engine
// never needs to construct an unbounded string key by hand.
func cacheKey(tenantID string, rctx Context) (string, error) {
	b, err := json.Marshal(rctx)
	if err != nil {
		return "", fmt.Errorf("routing: encoding context for cache key: %w", err)
	}
	sum := blake2b.Sum256(b)
	return fmt.Sprintf("routing:%s:%x", tenantID, sum), nil
}
