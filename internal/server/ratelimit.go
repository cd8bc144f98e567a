package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimits bounds what one client may submit. Zero disables a limit.
type RateLimits struct {
	PerMinute   int   `json:"per_minute"`
	PerHour     int   `json:"per_hour"`
	PerDay      int   `json:"per_day"`
	BytesPerDay int64 `json:"bytes_per_day"`
}

// Enabled reports whether any limit is set.
func (l RateLimits) Enabled() bool {
	return l.PerMinute > 0 || l.PerHour > 0 || l.PerDay > 0 || l.BytesPerDay > 0
}

// window counts events in a fixed interval starting at start.
type window struct {
	start time.Time
	count int64
}

func (w *window) roll(now time.Time, length time.Duration) {
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}

func (w *window) retryAfter(now time.Time, length time.Duration) time.Duration {
	return max(w.start.Add(length).Sub(now), 0)
}

type clientUsage struct {
	minute, hour, day window
	bytes             window
}

// RateLimiter tracks per-client request counts and upload volume in fixed
// minute, hour and day windows.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimits
	clients map[string]*clientUsage
	now     func() time.Time
}

// NewRateLimiter creates a limiter for limits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// Allow records a request of size bytes from client, or returns a
// *LimitError when one of the limits would be exceeded. Rejected requests
// are not counted.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clients[client]
	if u == nil {
		u = &clientUsage{
			minute: window{start: now},
			hour:   window{start: now},
			day:    window{start: now},
			bytes:  window{start: now},
		}
		rl.clients[client] = u
	}
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	u.day.roll(now, 24*time.Hour)
	u.bytes.roll(now, 24*time.Hour)

	checks := []struct {
		scope  string
		w      *window
		length time.Duration
		limit  int64
		add    int64
	}{
		{"minute", &u.minute, time.Minute, int64(rl.limits.PerMinute), 1},
		{"hour", &u.hour, time.Hour, int64(rl.limits.PerHour), 1},
		{"day", &u.day, 24 * time.Hour, int64(rl.limits.PerDay), 1},
		{"bytes", &u.bytes, 24 * time.Hour, rl.limits.BytesPerDay, size},
	}
	for _, c := range checks {
		if c.limit > 0 && c.w.count+c.add > c.limit {
			return &LimitError{
				Scope:      c.scope,
				Limit:      c.limit,
				Used:       c.w.count,
				RetryAfter: c.w.retryAfter(now, c.length),
			}
		}
	}
	for _, c := range checks {
		c.w.count += c.add
	}
	return nil
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	Minute int64 `json:"minute"`
	Hour   int64 `json:"hour"`
	Day    int64 `json:"day"`
	Bytes  int64 `json:"bytes"`
}

// Usage returns the current counters of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u := rl.clients[client]
	if u == nil {
		return Usage{}
	}
	return Usage{Minute: u.minute.count, Hour: u.hour.count, Day: u.day.count, Bytes: u.bytes.count}
}

// LimitError reports which limit rejected a request.
type LimitError struct {
	Scope      string // minute, hour, day or bytes
	Limit      int64
	Used       int64
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (used %d of %d, retry after %v)",
		e.Scope, e.Used, e.Limit, e.RetryAfter.Round(time.Second))
}
