package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type sample struct {
	Symbol string
	Score  float64
	Tags   []string
}

func newMemory(c *clock, size int) *MemoryCache {
	return NewMemoryCache(WithMemoryMaxSize(size), WithMemoryCleanup(0), WithMemoryClock(c.Now))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mc := newMemory(c, 10)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	c.t = c.t.Add(time.Minute)
	_, err = mc.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrCacheMiss))
	ok, _ := mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mc := newMemory(c, 2)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), 0))
	c.t = c.t.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), 0))
	c.t = c.t.Add(time.Second)
	_, _ = mc.Get(ctx, "a")
	c.t = c.t.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, mc.Len())
	_, err := mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mc := newMemory(c, 10)
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "scan", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "scan", time.Second)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "scan"))
	ok, _ = mc.TryLock(ctx, "scan", time.Second)
	assert.True(t, ok)
}

func TestValueCodecRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	in := sample{Symbol: "BTC", Score: 71.5, Tags: []string{"whale"}}
	require.NoError(t, SetValue(ctx, mc, GenerateKey("synthesis", "BTC"), in, time.Minute))
	out, err := GetValue[sample](ctx, mc, "synthesis:BTC")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = GetValue[sample](ctx, mc, "synthesis:ETH")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, WithLayeredL1TTL(time.Minute))
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "k", []byte("from-l2"), time.Hour))
	got, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-l2"), got)

	require.NoError(t, l2.Delete(ctx, "k"))
	got, err = lc.Get(ctx, "k")
	require.NoError(t, err, "served from L1")
	assert.Equal(t, []byte("from-l2"), got)

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = lc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
