package obs

import (
	"sync"
	"time"

	"engine/internal/schema"
)

// PerformanceStats accumulates per message type processing times between
// two StatsAndReset calls.
type PerformanceStats struct {
	mu    sync.Mutex
	stats map[schema.MessageType]*typeStats
}

type typeStats struct {
	count     uint64
	total     time.Duration
	processed time.Duration
}

// TypeStats is the report for one message type.
type TypeStats struct {
	Type          schema.MessageType `json:"type"`
	Count         uint64             `json:"count"`
	AvgTotal      time.Duration      `json:"avgTotal"`
	AvgProcessing time.Duration      `json:"avgProcessing"`
}

func NewPerformanceStats() *PerformanceStats {
	return &PerformanceStats{stats: make(map[schema.MessageType]*typeStats)}
}

// AddMessage records one message. total spans from receipt to the end of
// processing, processing only the processor call.
func (p *PerformanceStats) AddMessage(t schema.MessageType, total, processing time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[t]
	if !ok {
		s = &typeStats{}
		p.stats[t] = s
	}
	s.count++
	s.total += total
	s.processed += processing
}

// StatsAndReset returns the collected stats ordered by type and starts over.
func (p *PerformanceStats) StatsAndReset() []TypeStats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	stats := p.stats
	p.stats = make(map[schema.MessageType]*typeStats, len(stats))
	p.mu.Unlock()

	out := make([]TypeStats, 0, len(stats))
	for t := schema.MessageType(0); t <= schema.MaxMessageType; t++ {
		s, ok := stats[t]
		if !ok || s.count == 0 {
			continue
		}
		out = append(out, TypeStats{
			Type:          t,
			Count:         s.count,
			AvgTotal:      s.total / time.Duration(s.count),
			AvgProcessing: s.processed / time.Duration(s.count),
		})
	}
	return out
}
