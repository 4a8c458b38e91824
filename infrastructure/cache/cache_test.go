package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(DefaultConfig())

	_, ok := c.Get("tenant-1:route-decision")
	require.False(t, ok)

	c.Set("tenant-1:route-decision", "RTGS", 0)
	v, ok := c.Get("tenant-1:route-decision")
	require.True(t, ok)
	assert.Equal(t, "RTGS", v)
}

func TestCache_GetExpiredEntryMisses(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_GetVersionTracksGeneration(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", 0)

	_, version, ok := c.GetVersion("k1")
	require.True(t, ok)
	assert.Equal(t, int64(0), version)

	c.InvalidateVersion()
	c.Set("k1", "v2", 0)

	_, version, ok = c.GetVersion("k1")
	require.True(t, ok)
	assert.Equal(t, int64(1), version)
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", 0)
	c.Invalidate("k1")

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("tenant-1:a", "v1", 0)
	c.Set("tenant-1:b", "v2", 0)
	c.Set("tenant-2:a", "v3", 0)

	c.InvalidatePattern("tenant-1:")

	_, ok := c.Get("tenant-1:a")
	assert.False(t, ok)
	_, ok = c.Get("tenant-1:b")
	assert.False(t, ok)
	_, ok = c.Get("tenant-2:a")
	assert.True(t, ok)
}

func TestCache_InvalidateVersionDropsAllEntries(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", 0)
	c.Set("k2", "v2", 0)

	beforeVersion := c.GetCurrentVersion()
	c.InvalidateVersion()

	assert.Equal(t, beforeVersion+1, c.GetCurrentVersion())
	assert.Equal(t, 0, c.Size())
}

func TestCache_Size(t *testing.T) {
	c := NewCache(DefaultConfig())
	assert.Equal(t, 0, c.Size())
	c.Set("k1", "v1", 0)
	c.Set("k2", "v2", 0)
	assert.Equal(t, 2, c.Size())
}
