// Package audit carries audit records from the dispatch goroutine to a
// publisher without ever blocking the dispatcher.
package audit

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"engine/internal/obs"
	"engine/internal/schema"
)

const (
	defaultBatchSize    = 128
	defaultFlushTimeout = 5 * time.Second
)

// Publisher delivers audit records downstream.
type Publisher interface {
	Publish(ctx context.Context, recs ...schema.CashOperation) error
}

// Queue is a bounded audit channel. When it is full, Emit drops the new
// record, logs it and counts it.
type Queue struct {
	ch      chan schema.CashOperation
	metrics *obs.Metrics
}

func NewQueue(size int, metrics *obs.Metrics) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:      make(chan schema.CashOperation, size),
		metrics: metrics,
	}
}

// Emit enqueues rec without blocking.
func (q *Queue) Emit(rec schema.CashOperation) {
	select {
	case q.ch <- rec:
	default:
		q.metrics.IncAuditDrop()
		logs.Errorf("audit queue full, drop cash operation %s client %s asset %s volume %s", rec.ID, rec.ClientID, rec.Asset, rec.Volume)
	}
}

// Len returns the number of pending records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run hands queued records to pub in batches until ctx is done, then flushes
// what is left with a short deadline.
func (q *Queue) Run(ctx context.Context, pub Publisher) {
	batch := make([]schema.CashOperation, 0, defaultBatchSize)
	for {
		select {
		case <-ctx.Done():
			q.flush(pub, batch[:0])
			return
		case rec := <-q.ch:
			batch = append(batch[:0], rec)
			batch = q.fill(batch)
			q.publish(ctx, pub, batch)
		}
	}
}

func (q *Queue) fill(batch []schema.CashOperation) []schema.CashOperation {
	for len(batch) < cap(batch) {
		select {
		case rec := <-q.ch:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (q *Queue) flush(pub Publisher, batch []schema.CashOperation) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()
	if cap(batch) == 0 {
		batch = make([]schema.CashOperation, 0, defaultBatchSize)
	}
	for {
		batch = q.fill(batch[:0])
		if len(batch) == 0 {
			return
		}
		q.publish(ctx, pub, batch)
	}
}

func (q *Queue) publish(ctx context.Context, pub Publisher, batch []schema.CashOperation) {
	if err := pub.Publish(ctx, batch...); err != nil {
		logs.Errorf("publish %d audit records, err: %+v", len(batch), err)
		return
	}
	q.metrics.AddAuditSent(len(batch))
}
