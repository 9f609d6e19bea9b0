package snowflake

import (
	"sync"
	"time"
)

const (
	// epochMillis is 2022-01-01T00:00:00Z. Ids are offsets from this point,
	// which keeps the timestamp segment inside 41 bits until ~2091.
	epochMillis int64 = 1640995200000

	// sequenceBits is the width of the per-millisecond counter.
	sequenceBits  = 12
	sequenceLimit = 1 << sequenceBits
)

// Generator produces time-ordered unique int64 ids, partitioned by a
// business tag. Each tag gets its own per-millisecond sequence counter, so
// ids for different tags never contend for sequence space.
//
// Uniqueness and monotonicity hold within a single Generator instance.
// Running multiple instances against the same id space requires disjoint
// tags; the bit layout reserves no instance segment.
type Generator struct {
	mu   sync.Mutex
	tags map[string]*tagState
	now  func() time.Time
}

type tagState struct {
	lastMillis int64
	sequence   int64
}

// New creates a Generator.
func New() *Generator {
	return &Generator{
		tags: make(map[string]*tagState),
		now:  time.Now,
	}
}

// NextID returns the next id for the given business tag.
// Layout: (millis since epoch) << 12 | sequence.
func (g *Generator) NextID(tag string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.tags[tag]
	if !ok {
		st = &tagState{lastMillis: -1}
		g.tags[tag] = st
	}

	millis := g.now().UnixMilli() - epochMillis
	if millis < st.lastMillis {
		// Clock went backwards; stay on the last observed millisecond so
		// ids keep increasing.
		millis = st.lastMillis
	}

	if millis == st.lastMillis {
		st.sequence++
		if st.sequence >= sequenceLimit {
			// Sequence exhausted for this millisecond, move to the next one.
			millis = st.lastMillis + 1
			st.sequence = 0
		}
	} else {
		st.sequence = 0
	}
	st.lastMillis = millis

	return millis<<sequenceBits | st.sequence
}

// Timestamp extracts the wall-clock time encoded in an id.
func Timestamp(id int64) time.Time {
	return time.UnixMilli(id>>sequenceBits + epochMillis)
}
