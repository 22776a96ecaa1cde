package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out trace ids for inbound messages. Ids are unique per
// process start and increase in receive order across all sessions.
type TraceGenerator struct {
	last atomic.Uint64
}

// NewTraceGenerator starts after base. A zero base uses the start time, so
// ids of two runs do not overlap.
func NewTraceGenerator(base uint64) *TraceGenerator {
	if base == 0 {
		base = uint64(time.Now().UnixNano())
	}
	g := &TraceGenerator{}
	g.last.Store(base)
	return g
}

// Next returns a new trace id, or zero for a nil generator.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Add(1)
}
