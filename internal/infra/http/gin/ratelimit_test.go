package ginserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterPoolEvictsIdleActors(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pool := newLimiterPool(5, 10)
	pool.now = func() time.Time { return clock }

	first := pool.get("u1")
	pool.get("u2")
	assert.Equal(t, 2, pool.size())
	assert.Same(t, first, pool.get("u1"), "an active actor keeps its limiter")

	clock = clock.Add(limiterIdleTTL / 2)
	pool.get("u1")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	pool.get("u3")
	assert.Equal(t, 2, pool.size(), "u2 went idle and was dropped")
	assert.Same(t, first, pool.get("u1"))
}

func TestLimiterPoolKeepsSlowBucketsUntilRefilled(t *testing.T) {
	pool := newLimiterPool(0.001, 1)
	assert.GreaterOrEqual(t, pool.idle, 1000*time.Second)

	fast := newLimiterPool(5, 10)
	assert.Equal(t, limiterIdleTTL, fast.idle)
}
