package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matrix-construct/construct-sub003/internal/resolvers"
)

func TestPickWeightedSingleTarget(t *testing.T) {
	targets := []resolvers.SRVTarget{{Priority: 10, Weight: 0, Host: "a"}}
	got := resolvers.PickWeighted(targets)
	assert.Equal(t, "a", got.Host)
}

func TestPickWeightedPrefersLowestPriority(t *testing.T) {
	targets := []resolvers.SRVTarget{
		{Priority: 20, Weight: 10, Host: "low-pref"},
		{Priority: 10, Weight: 1, Host: "high-pref"},
	}
	for i := 0; i < 20; i++ {
		got := resolvers.PickWeighted(targets)
		assert.Equal(t, "high-pref", got.Host)
	}
}
