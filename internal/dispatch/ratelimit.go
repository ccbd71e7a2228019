package dispatch

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/config"
)

// This file implements pre-admission rate limiting for outbound federation
// requests, using the token bucket algorithm. It mirrors the broker's own
// three-level admission control (global, grouped, per-key) but regrouped
// around destinations instead of source IPs:
//
//   - Global: overall dispatcher-wide submission rate
//   - Suffix: per registrable-domain-suffix group (e.g. every destination
//     under the same parent domain shares a bucket, analogous to a
//     /24 and /64 network-prefix grouping for source IPs)
//   - Destination: per individual federation destination
//
// A Submit must pass all three levels to be admitted.

// RateLimiter combines global, suffix, and per-destination rate limiters.
type RateLimiter struct {
	global      *TokenBucketRateLimiter
	suffix      *TokenBucketRateLimiter
	destination *TokenBucketRateLimiter
}

// NewRateLimiter builds a RateLimiter from configuration.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	cleanupInterval := time.Duration(math.Max(0.0, cfg.CleanupSeconds) * float64(time.Second))
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}

	return &RateLimiter{
		global: NewTokenBucketRateLimiter(TokenBucketConfig{
			Rate: cfg.GlobalQPS, Burst: cfg.GlobalBurst, CleanupInterval: cleanupInterval, MaxEntries: 1,
		}),
		suffix: NewTokenBucketRateLimiter(TokenBucketConfig{
			Rate: cfg.PrefixQPS, Burst: cfg.PrefixBurst, CleanupInterval: cleanupInterval, MaxEntries: cfg.MaxPrefixEntries,
		}),
		destination: NewTokenBucketRateLimiter(TokenBucketConfig{
			Rate: cfg.IPQPS, Burst: cfg.IPBurst, CleanupInterval: cleanupInterval, MaxEntries: cfg.MaxIPEntries,
		}),
	}
}

// Allow checks whether a Submit to destination should be admitted.
func (r *RateLimiter) Allow(destination string) bool {
	if r == nil {
		return true
	}
	if !r.global.Allow("*") {
		return false
	}
	if !r.suffix.Allow(suffixKey(destination)) {
		return false
	}
	if !r.destination.Allow(destination) {
		return false
	}
	return true
}

// suffixKey groups a destination by its last two DNS labels, an
// approximation of its registrable domain, the federation-destination analog
// of network-prefix grouping for source IPs.
func suffixKey(destination string) string {
	labels := strings.Split(strings.TrimSuffix(destination, "."), ".")
	if len(labels) <= 2 {
		return strings.ToLower(destination)
	}
	return strings.ToLower(strings.Join(labels[len(labels)-2:], "."))
}

// TokenBucketConfig configures a token bucket rate limiter.
type TokenBucketConfig struct {
	Rate            float64       // Tokens replenished per second
	Burst           int           // Maximum tokens (burst capacity)
	CleanupInterval time.Duration // How often to clean up stale entries
	MaxEntries      int           // Maximum tracked keys (bounds memory use)
}

// TokenBucketRateLimiter implements the token bucket algorithm.
//
//   - Each key has a bucket of tokens, replenished at Rate tokens/second.
//   - Each request consumes 1 token.
//   - The bucket holds at most Burst tokens.
//   - A request is allowed if the bucket has >= 1 token, denied otherwise.
type TokenBucketRateLimiter struct {
	rate            float64
	burst           float64
	cleanupInterval time.Duration
	maxEntries      int

	mu          sync.Mutex
	lastCleanup time.Time
	lastUpdate  map[string]time.Time
	tokens      map[string]float64
}

// NewTokenBucketRateLimiter creates a new rate limiter with the given configuration.
func NewTokenBucketRateLimiter(cfg TokenBucketConfig) *TokenBucketRateLimiter {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1
	}
	ci := cfg.CleanupInterval
	if ci <= 0 {
		ci = 60 * time.Second
	}
	return &TokenBucketRateLimiter{
		rate:            cfg.Rate,
		burst:           float64(cfg.Burst),
		cleanupInterval: ci,
		maxEntries:      maxEntries,
		lastCleanup:     time.Now(),
		lastUpdate:      map[string]time.Time{},
		tokens:          map[string]float64{},
	}
}

// Allow checks if a request for the given key should be allowed. Rate
// limiting is disabled entirely if rate or burst is <= 0.
func (l *TokenBucketRateLimiter) Allow(key string) bool {
	if l == nil || l.rate <= 0.0 || l.burst <= 0.0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}

	last, exists := l.lastUpdate[key]
	if !exists {
		if len(l.lastUpdate) >= l.maxEntries {
			l.cleanupLocked(now)
			if len(l.lastUpdate) >= l.maxEntries {
				return false
			}
		}
		l.lastUpdate[key] = now
		l.tokens[key] = l.burst - 1.0
		return true
	}

	elapsed := now.Sub(last).Seconds()
	l.lastUpdate[key] = now

	tokens := l.tokens[key]
	if elapsed > 0 {
		tokens = math.Min(l.burst, tokens+(elapsed*l.rate))
	}

	if tokens >= 1.0 {
		l.tokens[key] = tokens - 1.0
		return true
	}

	l.tokens[key] = tokens
	return false
}

// cleanupLocked removes entries that haven't been accessed recently.
// Must be called with l.mu held.
func (l *TokenBucketRateLimiter) cleanupLocked(now time.Time) {
	staleBefore := now.Add(-l.cleanupInterval)
	for k, last := range l.lastUpdate {
		if !last.After(staleBefore) {
			delete(l.lastUpdate, k)
			delete(l.tokens, k)
		}
	}
	l.lastCleanup = now
}
