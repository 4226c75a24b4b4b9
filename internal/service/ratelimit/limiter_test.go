package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAtIsPerKey(t *testing.T) {
	l := New(2, 1)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.AllowAt("BTC", t0))
	assert.False(t, l.AllowAt("BTC", t0.Add(100*time.Millisecond)))
	assert.True(t, l.AllowAt("ETH", t0.Add(100*time.Millisecond)))
	assert.True(t, l.AllowAt("BTC", t0.Add(600*time.Millisecond)))
	assert.Equal(t, 2, l.Len())

	l.Forget("ETH")
	assert.Equal(t, 1, l.Len())
}

func TestBurst(t *testing.T) {
	l := New(1, 3)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowAt("SOL", t0))
	}
	assert.False(t, l.AllowAt("SOL", t0))
}

func TestZeroRateDisablesLimit(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("BTC"))
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.True(t, l.Allow("BTC"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "BTC"))
}
