package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter limits how many frames each client may upload. Counters run
// in fixed windows that start at the client's first request in the window.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

type clientUsage struct {
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time

	minute int
	hour   int
	day    int
	bytes  int64
}

// Usage is a point-in-time copy of a client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a rate limiter. A zero limit disables that check.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// CheckRateLimit records a request of dataSize bytes from client, or returns
// a *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) CheckRateLimit(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clients[client]
	if u == nil {
		u = &clientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.clients[client] = u
	}
	u.roll(now)

	if rl.requestsPerMinute > 0 && u.minute >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.hour >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.day >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.day), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.bytes+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.bytes, Resets: resets}
	}

	u.minute++
	u.hour++
	u.day++
	u.bytes += dataSize
	return nil
}

func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minute = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hour = now, 0
	}
	if day := startOfDay(now); !day.Equal(u.dayStart) {
		u.dayStart, u.day, u.bytes = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// GetUsage returns the current counters for client.
func (rl *RateLimiter) GetUsage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	u.roll(rl.now())
	return Usage{RequestsLastMinute: u.minute, RequestsLastHour: u.hour, RequestsToday: u.day, DataToday: u.bytes}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
