package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := newLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 2, Window: time.Second})
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
}

func TestRateLimiter_LimitExceeded(t *testing.T) {
	rl := newLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Window: time.Second})
	require.False(t, rl.LimitExceeded())
	assert.True(t, rl.LimitExceeded())
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Window: time.Second})
	require.False(t, rl.LimitExceeded())
	require.True(t, rl.LimitExceeded())
	rl.Reset()
	assert.False(t, rl.LimitExceeded())
}

func TestRateLimitedClient_WaitsThenDelegates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRateLimitedClient(&http.Client{}, RateLimitConfig{RequestsPerSecond: 1000, Burst: 10, Window: time.Second})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitedClient_WaitCancelledByContext(t *testing.T) {
	client := NewRateLimitedClient(&http.Client{}, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, Window: time.Second})
	// Exhaust the single burst token so the next call actually waits.
	require.True(t, client.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.Error(t, err)
}

func TestRegistry_ClientForIsolatesRailsByBudget(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	reg.Configure(RailClearing, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, Window: time.Second})
	reg.Configure(RailFraudScore, RateLimitConfig{RequestsPerSecond: 1000, Burst: 10, Window: time.Second})

	clearing := reg.ClientFor(RailClearing, &http.Client{})
	fraud := reg.ClientFor(RailFraudScore, &http.Client{})

	// Exhaust clearing's single burst token.
	require.True(t, clearing.Allow())
	assert.True(t, clearing.LimitExceeded())

	// The fraud-scoring rail's budget is untouched.
	assert.False(t, fraud.LimitExceeded())
}

func TestRegistry_ClientForCachesPerRail(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	a := reg.ClientFor(RailNotification, &http.Client{})
	b := reg.ClientFor(RailNotification, &http.Client{})
	assert.Same(t, a, b)
}

func TestRegistry_UnconfiguredRailUsesDefault(t *testing.T) {
	reg := NewRegistry(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, Window: time.Second})
	limiter := reg.LimiterFor(RailClearing)
	require.True(t, limiter.Allow())
	assert.True(t, limiter.LimitExceeded())
}
