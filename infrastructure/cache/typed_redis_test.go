package cache

import (
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisTypedCache_SetGetInvalidate(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	type decision struct {
		ClearingSystem string
	}
	c := NewRedisTypedCache[decision](client, "test:routing", time.Minute)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k1", decision{ClearingSystem: "RTC"}, 0)
	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, "RTC", v.ClearingSystem)

	c.InvalidateVersion()
	_, ok = c.Get("k1")
	require.False(t, ok, "invalidating the version should hide previously cached entries")
}
