package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is returned when a remote host exceeds its join allowance.
var ErrRateLimited = errors.New("too many join attempts")

// JoinLimiter enforces a sliding window of join attempts per remote host.
type JoinLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewJoinLimiter allows up to limit attempts per host within window. A
// non-positive limit or window disables limiting.
func NewJoinLimiter(window time.Duration, limit int, timeSource func() time.Time) *JoinLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &JoinLimiter{
		window:   window,
		limit:    limit,
		now:      timeSource,
		attempts: make(map[string][]time.Time),
	}
}

// Allow records an attempt from host and reports whether it may proceed.
func (l *JoinLimiter) Allow(host string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	//1.- Forget hosts whose attempts all fell out of the window.
	for key, stamps := range l.attempts {
		if len(stamps) > 0 && !stamps[len(stamps)-1].After(cutoff) {
			delete(l.attempts, key)
		}
	}
	kept := l.attempts[host][:0]
	for _, ts := range l.attempts[host] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.attempts[host] = kept
		return false
	}
	l.attempts[host] = append(kept, now)
	return true
}

// Guard wraps next so upgrades over the limit are refused before next runs.
// A nil next admits every request under the limit.
func (l *JoinLimiter) Guard(next func(r *http.Request) error) func(r *http.Request) error {
	return func(r *http.Request) error {
		if !l.Allow(remoteHost(r.RemoteAddr)) {
			return ErrRateLimited
		}
		if next == nil {
			return nil
		}
		return next(r)
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}
