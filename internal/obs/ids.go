package obs

import (
	"sync/atomic"
)

// IDGenerator hands out process-unique monotonically increasing IDs.
type IDGenerator struct {
	next uint64
}

// NewIDGenerator returns a generator starting after the given seed.
func NewIDGenerator(seed uint64) *IDGenerator {
	return &IDGenerator{next: seed}
}

// Next returns the next ID.
func (g *IDGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
