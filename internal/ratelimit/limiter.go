// ABOUTME: Thread-safe fixed-window rate limiter keyed by client IP.
// ABOUTME: Offenders that exceed the window limit are blocked for a cooldown period.

package ratelimit

import (
	"sync"
	"time"
)

// ipEntry tracks one client's current window and any active block.
type ipEntry struct {
	windowStart time.Time
	count       int
	blockedTill time.Time
}

// Limiter enforces a per-IP request budget over a fixed window. A client
// that exceeds the budget is blocked for the cooldown, after which it
// starts a fresh window.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*ipEntry
	limit    int
	window   time.Duration
	cooldown time.Duration
	done     chan struct{}
	closed   bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a limiter allowing limit requests per window, blocking
// offenders for cooldown. A background goroutine prunes stale entries.
func New(limit int, window, cooldown time.Duration) *Limiter {
	l := &Limiter{
		clients:  make(map[string]*ipEntry),
		limit:    limit,
		window:   window,
		cooldown: cooldown,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go l.cleanup()
	return l
}

// Allow reports whether the client may proceed. When denied, retryAfter is
// how long the client should wait before trying again.
func (l *Limiter) Allow(ip string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.clients[ip]
	if !exists {
		l.clients[ip] = &ipEntry{windowStart: now, count: 1}
		return true, 0
	}

	if entry.blockedTill.After(now) {
		return false, entry.blockedTill.Sub(now)
	}

	// Window rolled over (or the block just expired): start fresh
	if now.Sub(entry.windowStart) >= l.window || !entry.blockedTill.IsZero() {
		entry.windowStart = now
		entry.count = 1
		entry.blockedTill = time.Time{}
		return true, 0
	}

	entry.count++
	if entry.count > l.limit {
		entry.blockedTill = now.Add(l.cooldown)
		return false, l.cooldown
	}
	return true, 0
}

// cleanup runs in a background goroutine, periodically dropping entries
// whose window and block have both lapsed.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, entry := range l.clients {
		if now.Sub(entry.windowStart) > l.window && !entry.blockedTill.After(now) {
			delete(l.clients, ip)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
