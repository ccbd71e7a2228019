package peer

import (
	"sync"
	"time"
)

// errorSlot tracks a Peer's destination-wide failure/cooldown state, the
// same idiom a forwarding resolver uses per upstream
// (upstreamFailedAt / canTryUpstream / markFailed / markHealthy), reused here
// per-destination instead of per-DNS-upstream.
type errorSlot struct {
	mu        sync.Mutex
	failedAt  time.Time
	hasFailed bool
	cooldown  time.Duration
}

func newErrorSlot(cooldown time.Duration) *errorSlot {
	return &errorSlot{cooldown: cooldown}
}

// canTry reports whether the destination may be attempted: either it has
// never failed, or its cooldown window has elapsed.
func (e *errorSlot) canTry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasFailed {
		return true
	}
	if time.Since(e.failedAt) >= e.cooldown {
		e.hasFailed = false
		return true
	}
	return false
}

// markFailed records the current time as the destination's failure
// timestamp, starting its cooldown window. A failure already in cooldown is
// not extended by a second call.
func (e *errorSlot) markFailed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasFailed {
		e.hasFailed = true
		e.failedAt = time.Now()
	}
}

// markHealthy clears any failure state, called after a new Link is
// successfully opened.
func (e *errorSlot) markHealthy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasFailed = false
}

// snapshot reports the slot's current state (failed flag and failure time).
type errorSlotSnapshot struct {
	Failed   bool
	FailedAt time.Time
}

func (e *errorSlot) snapshot() errorSlotSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errorSlotSnapshot{Failed: e.hasFailed, FailedAt: e.failedAt}
}
