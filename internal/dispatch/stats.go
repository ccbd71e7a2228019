package dispatch

import (
	"sync/atomic"
)

// Stats collects dispatcher-wide submission statistics, the federation
// analog of query-counter stats: submissions replace queries,
// and blocked/rate-limited/errored outcomes replace NXDOMAIN/SERVFAIL
// responses. All methods are safe for concurrent use.
type Stats struct {
	submitTotal  atomic.Uint64
	submitErrors atomic.Uint64
	blocked      atomic.Uint64
	rateLimited  atomic.Uint64
}

// NewStats creates a new dispatch statistics collector.
func NewStats() *Stats {
	return &Stats{}
}

// RecordSubmit records an accepted Submit call.
func (s *Stats) RecordSubmit() {
	s.submitTotal.Add(1)
}

// RecordSubmitError records a Submit call that failed admission at the
// Peer/Link layer (e.g. ErrLinksExhausted).
func (s *Stats) RecordSubmitError() {
	s.submitErrors.Add(1)
}

// RecordBlocked records a Submit call rejected by destination policy.
func (s *Stats) RecordBlocked() {
	s.blocked.Add(1)
}

// RecordRateLimited records a Submit call rejected by rate limiting.
func (s *Stats) RecordRateLimited() {
	s.rateLimited.Add(1)
}

// StatsSnapshot is a point-in-time snapshot of dispatcher statistics.
type StatsSnapshot struct {
	SubmitTotal  uint64
	SubmitErrors uint64
	Blocked      uint64
	RateLimited  uint64
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		SubmitTotal:  s.submitTotal.Load(),
		SubmitErrors: s.submitErrors.Load(),
		Blocked:      s.blocked.Load(),
		RateLimited:  s.rateLimited.Load(),
	}
}
