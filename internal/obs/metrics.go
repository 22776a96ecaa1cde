package obs

import (
	"sync/atomic"
	"time"

	"engine/internal/schema"
)

// Outcome classifies how the dispatcher finished with a message.
type Outcome uint8

const (
	OutcomeApplied Outcome = iota
	OutcomeMalformed
	OutcomeAssetNotFound
	OutcomeInsufficientFunds
	OutcomeDuplicate
	OutcomeUnroutable
	OutcomePanic
	OutcomeFailed
)

const maxOutcome = int(OutcomeFailed)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeAssetNotFound:
		return "asset_not_found"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnroutable:
		return "unroutable"
	case OutcomePanic:
		return "panic"
	default:
		return "failed"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	messageCounts [schema.MaxMessageType + 1]uint64
	outcomeCounts [maxOutcome + 1]uint64
	queueDrops    uint64
	queueClosed   uint64
	auditDrops    uint64
	auditSent     uint64
	journalErrors uint64

	queueLatency   LatencyStats
	processLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	MessageCounts  map[schema.MessageType]uint64 `json:"messageCounts"`
	OutcomeCounts  map[Outcome]uint64            `json:"outcomeCounts"`
	QueueDrops     uint64                        `json:"queueDrops"`
	QueueClosed    uint64                        `json:"queueClosed"`
	AuditDrops     uint64                        `json:"auditDrops"`
	AuditSent      uint64                        `json:"auditSent"`
	JournalErrors  uint64                        `json:"journalErrors"`
	QueueLatency   LatencySnapshot               `json:"queueLatency"`
	ProcessLatency LatencySnapshot               `json:"processLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveMessage counts a dequeued message and the time it spent queued.
func (m *Metrics) ObserveMessage(header schema.MessageHeader, dequeued time.Time) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.messageCounts) {
		atomic.AddUint64(&m.messageCounts[idx], 1)
	}
	if header.TsRecv > 0 {
		delta := dequeued.UnixNano() - header.TsRecv
		if delta >= 0 {
			m.queueLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveOutcome counts a processing outcome and its duration.
func (m *Metrics) ObserveOutcome(o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(o)
	if idx >= 0 && idx < len(m.outcomeCounts) {
		atomic.AddUint64(&m.outcomeCounts[idx], 1)
	}
	m.processLatency.Observe(d)
}

// IncQueueDrop records a message rejected because the queue was full.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncAuditDrop records an audit record dropped on overflow.
func (m *Metrics) IncAuditDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.auditDrops, 1)
}

// AddAuditSent records audit records handed to the publisher.
func (m *Metrics) AddAuditSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.auditSent, uint64(n))
}

// IncJournalError records a failed journal append.
func (m *Metrics) IncJournalError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalErrors, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	messageCounts := make(map[schema.MessageType]uint64)
	for i := range m.messageCounts {
		if v := atomic.LoadUint64(&m.messageCounts[i]); v > 0 {
			messageCounts[schema.MessageType(i)] = v
		}
	}
	outcomeCounts := make(map[Outcome]uint64)
	for i := range m.outcomeCounts {
		if v := atomic.LoadUint64(&m.outcomeCounts[i]); v > 0 {
			outcomeCounts[Outcome(i)] = v
		}
	}
	return Snapshot{
		MessageCounts:  messageCounts,
		OutcomeCounts:  outcomeCounts,
		QueueDrops:     atomic.LoadUint64(&m.queueDrops),
		QueueClosed:    atomic.LoadUint64(&m.queueClosed),
		AuditDrops:     atomic.LoadUint64(&m.auditDrops),
		AuditSent:      atomic.LoadUint64(&m.auditSent),
		JournalErrors:  atomic.LoadUint64(&m.journalErrors),
		QueueLatency:   m.queueLatency.Snapshot(),
		ProcessLatency: m.processLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
