package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testDecision struct {
	ClearingSystem string
}

func TestMemoryTypedCache_SetGet(t *testing.T) {
	backing := NewCache(DefaultConfig())
	c := NewMemoryTypedCache[testDecision](backing)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k1", testDecision{ClearingSystem: "RTGS"}, 0)
	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, "RTGS", v.ClearingSystem)
}

func TestMemoryTypedCache_WrongTypeMisses(t *testing.T) {
	backing := NewCache(DefaultConfig())
	backing.Set("k1", "not-a-decision", 0)

	c := NewMemoryTypedCache[testDecision](backing)
	_, ok := c.Get("k1")
	require.False(t, ok, "a value of the wrong concrete type should miss rather than panic")
}

func TestMemoryTypedCache_InvalidateVersion(t *testing.T) {
	backing := NewCache(DefaultConfig())
	c := NewMemoryTypedCache[testDecision](backing)

	c.Set("k1", testDecision{ClearingSystem: "EFT"}, 0)
	c.InvalidateVersion()

	_, ok := c.Get("k1")
	require.False(t, ok)
}
