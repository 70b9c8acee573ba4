package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_BlocksAndRecovers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1:1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, "signin", ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, "signin", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)

	ok, retry, err := m.Allow(ctx, "signin", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, retry)

	// other addresses and scopes are unaffected
	ok, _, _ = m.Allow(ctx, "signin", HashIP("10.0.0.2:1"))
	require.True(t, ok)
	ok, _, _ = m.Allow(ctx, "other", ip)
	require.True(t, ok)

	now = now.Add(11 * time.Minute)
	ok, _, _ = m.Allow(ctx, "signin", ip)
	require.True(t, ok)
}

func TestMemory_WindowResets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1:1")

	blocked, _, _ := m.Failure(ctx, "signin", ip)
	require.False(t, blocked)
	now = now.Add(2 * time.Minute)
	blocked, _, _ = m.Failure(ctx, "signin", ip)
	require.False(t, blocked, "stale failures are forgotten")
}

func TestMemory_SuccessClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})
	ip := HashIP("10.0.0.1:1")

	_, _, _ = m.Failure(ctx, "signin", ip)
	require.NoError(t, m.Success(ctx, "signin", ip))
	blocked, _, _ := m.Failure(ctx, "signin", ip)
	require.False(t, blocked)
}

func TestMemory_EvictsStaleEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		_, _, err := m.Failure(ctx, "signin", HashIP(fmt.Sprintf("10.0.%d.1", i)))
		require.NoError(t, err)
	}
	blocked := HashIP("10.1.0.1")
	_, _, _ = m.Failure(ctx, "signin", blocked)
	isBlocked, _, _ := m.Failure(ctx, "signin", blocked)
	require.True(t, isBlocked)
	require.Len(t, m.entries, 101)

	// past the window only the blocked address is kept
	now = now.Add(2 * time.Minute)
	ok, _, err := m.Allow(ctx, "signin", HashIP("10.2.0.1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, m.entries, 1)

	// past the block nothing is kept
	now = now.Add(10 * time.Minute)
	ok, _, _ = m.Allow(ctx, "signin", blocked)
	require.True(t, ok)
	require.Empty(t, m.entries)
}
