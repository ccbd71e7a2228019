package peer

import "github.com/matrix-construct/construct-sub003/internal/link"

// selectLink implements the 4-step Link selection algorithm, grounded on
// the selectUpstream/canTryUpstream idiom generalized from
// choosing-an-upstream-DNS-server to choosing-a-Link-within-a-Peer:
//
//  1. Filter to Links that are open and below TagMax.
//  2. Among those, prefer Links below TagCommitMax (so an in-flight-heavy
//     Link doesn't starve new admissions behind slow responses).
//  3. Pick the Link with the smallest TagCount, breaking ties by the
//     earliest-opened (lowest index) Link for determinism.
//  4. If none qualify and the Peer is below LinkMax, the caller opens a new
//     Link. Otherwise queue on whichever existing Link has the smallest
//     TagCount, or fail with ErrLinksExhausted if even that is at TagMax.
func selectLink(links []*link.Link, tagMax, tagCommitMax int) (idx int, openNew bool) {
	best := -1
	bestCommitted := -1
	bestCount := -1

	for i, l := range links {
		count := l.TagCount()
		if count >= tagMax {
			continue
		}
		committed := l.TagCommitted()
		underCommitCap := committed < tagCommitMax

		if best == -1 {
			best, bestCount, bestCommitted = i, count, committed
			continue
		}

		bestUnderCommitCap := bestCommitted < tagCommitMax
		switch {
		case underCommitCap && !bestUnderCommitCap:
			best, bestCount, bestCommitted = i, count, committed
		case underCommitCap == bestUnderCommitCap && count < bestCount:
			best, bestCount, bestCommitted = i, count, committed
		}
	}

	if best >= 0 {
		return best, false
	}
	return -1, true
}

// selectOverflowLink picks the least-loaded existing Link to queue onto when
// the Peer is already at LinkMax and every Link is saturated. Returns -1 if
// even the least-loaded Link is at TagMax (caller should fail with
// ErrLinksExhausted).
func selectOverflowLink(links []*link.Link, tagMax int) int {
	best := -1
	bestCount := -1
	for i, l := range links {
		count := l.TagCount()
		if best == -1 || count < bestCount {
			best, bestCount = i, count
		}
	}
	if best >= 0 && bestCount < tagMax {
		return best
	}
	return -1
}
