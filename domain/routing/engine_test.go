package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/infrastructure/cache"
	"github.com/paymentflow/core/domain/clock"
)

func newTestEngine() (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	c := cache.NewCache(cache.DefaultConfig())
	return NewEngine(store, c, clock.SystemClock{}), store
}

func TestEngine_MatchesOnAmountThreshold(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine()

	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 1, Status: StatusActive,
		Conditions: []Condition{{Field: "amount_minor", Op: OpGreaterThan, Value: float64(1_000_000)}},
		Actions:    []Action{{Type: ActionRoute, ClearingSystem: "WIRE", IsPrimary: true}},
	}))
	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R2", TenantID: "T1", Priority: 10, Status: StatusActive,
		Conditions: nil,
		Actions:    []Action{{Type: ActionRoute, ClearingSystem: "ACH", IsPrimary: true}},
	}))

	d, err := engine.Evaluate(ctx, "T1", Context{AmountMinor: 2_000_000})
	require.NoError(t, err)
	assert.Equal(t, "WIRE", d.ClearingSystem)
	assert.Equal(t, "R1", d.RuleID)

	d, err = engine.Evaluate(ctx, "T1", Context{AmountMinor: 500})
	require.NoError(t, err)
	assert.Equal(t, "ACH", d.ClearingSystem)
	assert.Equal(t, "R2", d.RuleID)
}

func TestEngine_MetadataFieldCondition(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine()

	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 10, Status: StatusActive,
		Conditions: []Condition{{Field: "metadata.country", Op: OpIn, Value: []interface{}{"US", "CA"}}},
		Actions:    []Action{{Type: ActionRoute, ClearingSystem: "DOMESTIC_ACH", IsPrimary: true}},
	}))

	d, err := engine.Evaluate(ctx, "T1", Context{MetadataJSON: `{"country":"US"}`})
	require.NoError(t, err)
	assert.Equal(t, "DOMESTIC_ACH", d.ClearingSystem)

	_, err = engine.Evaluate(ctx, "T1", Context{MetadataJSON: `{"country":"DE"}`})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestEngine_NoMatchReturnsDefaultWhenConfigured(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()
	engine.SetDefault("T1", "FALLBACK_RAIL")

	d, err := engine.Evaluate(ctx, "T1", Context{AmountMinor: 1})
	require.NoError(t, err)
	assert.Equal(t, "FALLBACK_RAIL", d.ClearingSystem)
}

func TestEngine_InactiveRuleIsIgnored(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine()

	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 10, Status: StatusInactive,
		Actions: []Action{{Type: ActionRoute, ClearingSystem: "WIRE", IsPrimary: true}},
	}))

	_, err := engine.Evaluate(ctx, "T1", Context{})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestEngine_EffectiveWindowRespected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := cache.NewCache(cache.DefaultConfig())
	fixed := clock.FixedClock{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, c, fixed)

	future := fixed.At.Add(24 * time.Hour)
	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 10, Status: StatusActive,
		EffectiveFrom: &future,
		Actions:       []Action{{Type: ActionRoute, ClearingSystem: "WIRE", IsPrimary: true}},
	}))

	_, err := engine.Evaluate(ctx, "T1", Context{})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestEngine_CacheHitSkipsReevaluation(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine()

	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 10, Status: StatusActive,
		Actions: []Action{{Type: ActionRoute, ClearingSystem: "WIRE", IsPrimary: true}},
	}))

	rctx := Context{AmountMinor: 100}
	d1, err := engine.Evaluate(ctx, "T1", rctx)
	require.NoError(t, err)

	// Mutate the rule without telling the engine; a cache hit must still
	// return the stale decision until InvalidateTenant is called.
	require.NoError(t, store.Put(ctx, Rule{
		RuleID: "R1", TenantID: "T1", Priority: 10, Status: StatusActive,
		Actions: []Action{{Type: ActionRoute, ClearingSystem: "ACH", IsPrimary: true}},
	}))
	d2, err := engine.Evaluate(ctx, "T1", rctx)
	require.NoError(t, err)
	assert.Equal(t, d1.ClearingSystem, d2.ClearingSystem)

	engine.InvalidateTenant("T1")
	d3, err := engine.Evaluate(ctx, "T1", rctx)
	require.NoError(t, err)
	assert.Equal(t, "ACH", d3.ClearingSystem)
}
