package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour, WithStoreClock(clock.Now))
	t.Cleanup(s.Close)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	clock.Advance(time.Minute)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "entry must expire at its ttl")

	s.sweep()
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemoryStore_Incr(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour, WithStoreClock(clock.Now))
	t.Cleanup(s.Close)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "w", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	clock.Advance(time.Minute)
	n, err := s.Incr(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after the window")
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	s.Close()
	s.Close()
}

func TestLoginThrottle(t *testing.T) {
	th := NewLoginThrottle(0.001, 2)
	assert.True(t, th.Allow("1.2.3.4"))
	assert.True(t, th.Allow("1.2.3.4"))
	assert.False(t, th.Allow("1.2.3.4"))
	assert.True(t, th.Allow("5.6.7.8"), "limits are per client")
}
