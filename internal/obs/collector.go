package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "engine"

// Collector exports a Metrics snapshot to prometheus on every scrape.
type Collector struct {
	metrics *Metrics

	messages       *prometheus.Desc
	outcomes       *prometheus.Desc
	queueDrops     *prometheus.Desc
	queueClosed    *prometheus.Desc
	auditDrops     *prometheus.Desc
	auditSent      *prometheus.Desc
	journalErrors  *prometheus.Desc
	processLatency *prometheus.Desc
	queueLatency   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(m *Metrics) *Collector {
	return &Collector{
		metrics:        m,
		messages:       prometheus.NewDesc(namespace+"_messages_total", "Messages dequeued by type.", []string{"type"}, nil),
		outcomes:       prometheus.NewDesc(namespace+"_outcomes_total", "Processed messages by outcome.", []string{"outcome"}, nil),
		queueDrops:     prometheus.NewDesc(namespace+"_queue_dropped_total", "Messages rejected by a full inbound queue.", nil, nil),
		queueClosed:    prometheus.NewDesc(namespace+"_queue_closed_total", "Publishes attempted on a closed inbound queue.", nil, nil),
		auditDrops:     prometheus.NewDesc(namespace+"_audit_dropped_total", "Audit records dropped on overflow.", nil, nil),
		auditSent:      prometheus.NewDesc(namespace+"_audit_sent_total", "Audit records handed to the publisher.", nil, nil),
		journalErrors:  prometheus.NewDesc(namespace+"_journal_errors_total", "Failed journal appends.", nil, nil),
		processLatency: prometheus.NewDesc(namespace+"_process_latency_seconds", "Processing latency.", []string{"stat"}, nil),
		queueLatency:   prometheus.NewDesc(namespace+"_queue_latency_seconds", "Time spent in the inbound queue.", []string{"stat"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	ch <- c.outcomes
	ch <- c.queueDrops
	ch <- c.queueClosed
	ch <- c.auditDrops
	ch <- c.auditSent
	ch <- c.journalErrors
	ch <- c.processLatency
	ch <- c.queueLatency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	for t, v := range s.MessageCounts {
		ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(v), t.String())
	}
	for o, v := range s.OutcomeCounts {
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(v), o.String())
	}
	ch <- prometheus.MustNewConstMetric(c.queueDrops, prometheus.CounterValue, float64(s.QueueDrops))
	ch <- prometheus.MustNewConstMetric(c.queueClosed, prometheus.CounterValue, float64(s.QueueClosed))
	ch <- prometheus.MustNewConstMetric(c.auditDrops, prometheus.CounterValue, float64(s.AuditDrops))
	ch <- prometheus.MustNewConstMetric(c.auditSent, prometheus.CounterValue, float64(s.AuditSent))
	ch <- prometheus.MustNewConstMetric(c.journalErrors, prometheus.CounterValue, float64(s.JournalErrors))
	collectLatency(ch, c.processLatency, s.ProcessLatency)
	collectLatency(ch, c.queueLatency, s.QueueLatency)
}

func collectLatency(ch chan<- prometheus.Metric, desc *prometheus.Desc, l LatencySnapshot) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, l.Min.Seconds(), "min")
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, l.Max.Seconds(), "max")
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, l.Avg.Seconds(), "avg")
}
