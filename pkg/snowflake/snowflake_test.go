package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDUniqueAndMonotonic(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 500

	g := New()

	var wg sync.WaitGroup
	results := make([][]int64, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				ids = append(ids, g.NextID("order"))
			}
			results[slot] = ids
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, goroutines*perGoroutine)
	for _, ids := range results {
		for k, id := range ids {
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}

			// Each caller observes strictly increasing ids.
			if k > 0 {
				assert.Greater(t, id, ids[k-1])
			}
		}
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestNextIDSequenceRollsToNextMillisecond(t *testing.T) {
	g := New()
	fixed := time.UnixMilli(epochMillis + 1000)
	g.now = func() time.Time { return fixed }

	var last int64 = -1
	for i := 0; i < sequenceLimit+10; i++ {
		id := g.NextID("order")
		require.Greater(t, id, last)
		last = id
	}

	// Rollover advanced the encoded timestamp past the frozen clock.
	assert.True(t, Timestamp(last).After(fixed))
}

func TestNextIDClockGoingBackwards(t *testing.T) {
	g := New()

	now := time.UnixMilli(epochMillis + 5000)
	g.now = func() time.Time { return now }
	first := g.NextID("order")

	now = time.UnixMilli(epochMillis + 4000)
	second := g.NextID("order")

	assert.Greater(t, second, first)
}

func TestNextIDPerTagCounters(t *testing.T) {
	g := New()
	fixed := time.UnixMilli(epochMillis + 42)
	g.now = func() time.Time { return fixed }

	a := g.NextID("order")
	b := g.NextID("refund")

	// Separate tags start their own sequence in the same millisecond.
	assert.Equal(t, a, b)
}

func TestTimestampRoundTrip(t *testing.T) {
	g := New()
	before := time.Now().Truncate(time.Millisecond)
	id := g.NextID("order")
	after := time.Now()

	ts := Timestamp(id)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}
