package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the limiter through its windows.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limits RateLimits) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limits)
	rl.now = clock.now
	return rl, clock
}

func requireLimit(t *testing.T, err error, scope string) *LimitError {
	t.Helper()
	var le *LimitError
	require.True(t, errors.As(err, &le), "expected *LimitError, got %v", err)
	assert.Equal(t, scope, le.Scope)
	return le
}

func TestRateLimits_Enabled(t *testing.T) {
	assert.False(t, RateLimits{}.Enabled())
	assert.True(t, RateLimits{PerHour: 1}.Enabled())
	assert.True(t, RateLimits{BytesPerDay: 1}.Enabled())
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newTestLimiter(RateLimits{})
	for range 100 {
		require.NoError(t, rl.Allow("user1", 100))
	}
	usage := rl.Usage("user1")
	assert.Equal(t, int64(100), usage.Day)
	assert.Equal(t, int64(100*100), usage.Bytes)
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, clock := newTestLimiter(RateLimits{PerMinute: 2})

	require.NoError(t, rl.Allow("user1", 0))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.Allow("user1", 0))

	le := requireLimit(t, rl.Allow("user1", 0), "minute")
	assert.Equal(t, int64(2), le.Limit)
	assert.Equal(t, 50*time.Second, le.RetryAfter)

	// The window is anchored at its first request, not the latest one.
	clock.advance(50 * time.Second)
	assert.NoError(t, rl.Allow("user1", 0))
}

func TestRateLimiter_PerHour(t *testing.T) {
	rl, clock := newTestLimiter(RateLimits{PerHour: 3})

	for range 3 {
		require.NoError(t, rl.Allow("user1", 0))
		clock.advance(2 * time.Minute)
	}
	requireLimit(t, rl.Allow("user1", 0), "hour")

	clock.advance(time.Hour)
	assert.NoError(t, rl.Allow("user1", 0))
}

func TestRateLimiter_PerDay(t *testing.T) {
	rl, clock := newTestLimiter(RateLimits{PerDay: 2})

	require.NoError(t, rl.Allow("user1", 0))
	require.NoError(t, rl.Allow("user1", 0))
	le := requireLimit(t, rl.Allow("user1", 0), "day")
	assert.Equal(t, int64(2), le.Used)

	clock.advance(24 * time.Hour)
	assert.NoError(t, rl.Allow("user1", 0))
}

func TestRateLimiter_BytesPerDay(t *testing.T) {
	rl, _ := newTestLimiter(RateLimits{BytesPerDay: 1000})

	require.NoError(t, rl.Allow("user1", 600))
	le := requireLimit(t, rl.Allow("user1", 500), "bytes")
	assert.Equal(t, int64(600), le.Used)

	// A smaller upload still fits.
	require.NoError(t, rl.Allow("user1", 400))
	assert.Equal(t, int64(1000), rl.Usage("user1").Bytes)
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl, _ := newTestLimiter(RateLimits{PerMinute: 1, PerDay: 10})

	require.NoError(t, rl.Allow("user1", 0))
	for range 5 {
		requireLimit(t, rl.Allow("user1", 0), "minute")
	}
	assert.Equal(t, int64(1), rl.Usage("user1").Day)
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	rl, _ := newTestLimiter(RateLimits{PerMinute: 1})

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("b", 0))
	requireLimit(t, rl.Allow("a", 0), "minute")
	requireLimit(t, rl.Allow("b", 0), "minute")
}

func TestRateLimiter_UsageUnknownClient(t *testing.T) {
	rl, _ := newTestLimiter(RateLimits{PerMinute: 1})
	assert.Equal(t, Usage{}, rl.Usage("nobody"))
}
