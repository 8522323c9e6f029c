package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("page", "a"), Key("page", "a"))
	assert.NotEqual(t, Key("page", "a"), Key("page", "b"))
	assert.Regexp(t, `^isnad:[0-9a-f]{24}$`, Key("x"))
}

func TestCache_L1(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Minute, MaxEntries: 100})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("v"))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_L2SurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := CacheConfig{RedisURL: "redis://" + mr.Addr(), TTL: time.Minute}
	ctx := context.Background()

	first := NewCache(cfg)
	first.Set(ctx, "page", []byte("<html>"))
	require.NoError(t, first.Close())
	assert.True(t, mr.Exists("page"))

	second := NewCache(cfg)
	t.Cleanup(func() { _ = second.Close() })
	got, ok := second.Get(ctx, "page")
	require.True(t, ok)
	assert.Equal(t, []byte("<html>"), got)

	mr.FastForward(2 * time.Minute)
	third := NewCache(cfg)
	t.Cleanup(func() { _ = third.Close() })
	_, ok = third.Get(ctx, "page")
	assert.False(t, ok, "L2 entries expire with the TTL")
}

func TestCache_UnreachableRedisFallsBackToL1(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := NewCache(CacheConfig{RedisURL: "redis://" + addr, TTL: time.Minute})
	t.Cleanup(func() { _ = c.Close() })
	c.Set(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	assert.True(t, ok)
}

func TestCache_Evicts(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Minute, MaxEntries: 5})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	for i := range 20 {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}
	n := 0
	c.l1.Range(func(_, _ any) bool {
		n++
		return true
	})
	assert.LessOrEqual(t, n, 5)
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	c.Set(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}
