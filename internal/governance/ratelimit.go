package governance

import (
	"fmt"
	"time"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

// RateLimitConfig defines the per-session sliding window.
type RateLimitConfig struct {
	// Window is the trailing interval over which requests are counted.
	Window time.Duration
	// Limit is the maximum number of requests admitted per window.
	Limit int
}

// DefaultRateLimitConfig returns the default 10-per-minute window.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Window: time.Minute, Limit: 10}
}

// RateLimiter enforces the sliding-window request limit per session.
type RateLimiter struct {
	store  *SessionStore
	config RateLimitConfig
}

// NewRateLimiter creates a limiter backed by the shared session store.
func NewRateLimiter(store *SessionStore, config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	return &RateLimiter{store: store, config: config}
}

// Check admits or throttles one request for the session. Admission and the
// timestamp append happen under the session lock, so at-most-Limit-per-window
// holds even when the same session has concurrent in-flight requests.
func (rl *RateLimiter) Check(sessionID string) error {
	now := rl.store.now()
	sess := rl.store.acquire(sessionID)
	defer sess.mu.Unlock()

	cutoff := now.Add(-rl.config.Window)
	kept := sess.timestamps[:0]
	for _, ts := range sess.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	sess.timestamps = kept

	if len(sess.timestamps) >= rl.config.Limit {
		retryAfter := sess.timestamps[0].Add(rl.config.Window).Sub(now)
		if retryAfter < time.Millisecond {
			retryAfter = time.Millisecond
		}
		return &domain.ValidationError{
			Kind:       domain.KindRateLimitExceeded,
			Detail:     fmt.Sprintf("%d requests in the last %s", len(sess.timestamps), rl.config.Window),
			RetryAfter: retryAfter,
		}
	}

	sess.timestamps = append(sess.timestamps, now)
	return nil
}

// InWindow reports how many requests the session has inside the current
// window, without admitting a new one.
func (rl *RateLimiter) InWindow(sessionID string) int {
	now := rl.store.now()
	sess := rl.store.acquire(sessionID)
	defer sess.mu.Unlock()

	cutoff := now.Add(-rl.config.Window)
	count := 0
	for _, ts := range sess.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
