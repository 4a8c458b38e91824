package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/domain/limit"
)

func TestResolveToggle_MostSpecificWins(t *testing.T) {
	now := time.Now().UTC()
	toggles := []ToggleConfig{
		{TenantID: "T1", Status: "ACTIVE", IsEnabled: true},
		{TenantID: "T1", PaymentType: "RTC", Status: "ACTIVE", IsEnabled: false},
	}
	assert.False(t, ResolveToggle(toggles, "RTC", "", "", now))
	assert.True(t, ResolveToggle(toggles, "EFT", "", "", now))
}

func TestResolveToggle_DefaultEnabledWithNoMatch(t *testing.T) {
	assert.True(t, ResolveToggle(nil, "RTC", "", "", time.Now()))
}

func TestResolveToggle_InactiveRowIgnored(t *testing.T) {
	now := time.Now().UTC()
	toggles := []ToggleConfig{
		{TenantID: "T1", PaymentType: "RTC", Status: "INACTIVE", IsEnabled: false},
	}
	assert.True(t, ResolveToggle(toggles, "RTC", "", "", now))
}

type fakeProvider struct {
	score float64
	err   error
}

func (p fakeProvider) Score(ctx context.Context, req ScoreRequest) (float64, error) {
	return p.score, p.err
}

func TestEvaluator_BandsByScore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	cases := []struct {
		score float64
		want  Decision
	}{
		{0.1, DecisionApprove},
		{0.3, DecisionApprove},
		{0.45, DecisionApproveWithMonitoring},
		{0.7, DecisionRequireVerification},
		{0.95, DecisionReject},
	}
	for _, c := range cases {
		e := NewEvaluator(fakeProvider{score: c.score}, nil, 0)
		got, score, err := e.Evaluate(ctx, ScoreRequest{TenantID: "T1"}, nil, "", "", now, FallbackFailOpen)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.score, score)
	}
}

func TestEvaluator_ToggleDisabledSkipsProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	toggles := []ToggleConfig{{TenantID: "T1", Status: "ACTIVE", IsEnabled: false}}

	e := NewEvaluator(fakeProvider{err: errors.New("must not be called")}, nil, 0)
	d, score, err := e.Evaluate(ctx, ScoreRequest{TenantID: "T1"}, toggles, "", "", now, FallbackFailOpen)
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)
	assert.Zero(t, score)
}

func TestEvaluator_FailOpenOnProviderError(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator(fakeProvider{err: errors.New("scorer down")}, nil, 0)
	d, _, err := e.Evaluate(ctx, ScoreRequest{TenantID: "T1"}, nil, "", "", time.Now(), FallbackFailOpen)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproveWithMonitoring, d)
}

func TestEvaluator_FailClosedOnProviderError(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator(fakeProvider{err: errors.New("scorer down")}, nil, 0)
	d, _, err := e.Evaluate(ctx, ScoreRequest{TenantID: "T1"}, nil, "", "", time.Now(), FallbackFailClosed)
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, d)
}

func TestEvaluator_RuleBasedFallbackUsesVelocityCounter(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := limit.NewMemoryStore()
	key := limit.DailyKey("T1", "C1", now, time.UTC)
	_, err := store.AddToCounter(ctx, key, 90_000, 1)
	require.NoError(t, err)

	e := NewEvaluator(fakeProvider{err: errors.New("scorer down")}, store, 100_000)
	d, score, err := e.Evaluate(ctx, ScoreRequest{TenantID: "T1", CustomerID: "C1", AmountMinor: 5_000}, nil, "", "", now, FallbackRuleBased)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, score, 0.001)
	assert.Equal(t, DecisionReject, d)
}
