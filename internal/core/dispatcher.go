package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"engine/internal/bus"
	"engine/internal/errors"
	"engine/internal/ledger"
	"engine/internal/obs"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// Journal records every dequeued message before it is processed.
type Journal interface {
	Append(header schema.MessageHeader, payload []byte) error
}

type query struct {
	fn   func(*ledger.Store)
	done chan struct{}
}

// Dispatcher drains the inbound queue on a single goroutine and routes each
// message to its processor. It owns the ledger store.
type Dispatcher struct {
	queue   *bus.Queue
	router  *Router
	store   *ledger.Store
	metrics *obs.Metrics
	perf    *obs.PerformanceStats
	journal Journal
	now     func() time.Time

	seq     atomic.Uint64
	queries chan query
	stopped chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithMetrics(m *obs.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithPerformanceStats(p *obs.PerformanceStats) Option {
	return func(d *Dispatcher) {
		d.perf = p
	}
}

func WithJournal(j Journal) Option {
	return func(d *Dispatcher) {
		d.journal = j
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithStartSeq makes numbering continue after seq.
func WithStartSeq(seq uint64) Option {
	return func(d *Dispatcher) {
		d.seq.Store(seq)
	}
}

func NewDispatcher(queue *bus.Queue, router *Router, store *ledger.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:   queue,
		router:  router,
		store:   store,
		now:     time.Now,
		queries: make(chan query),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes the queue until ctx is done, or the queue is closed and
// drained. It must be called at most once.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-d.queries:
			q.fn(d.store)
			close(q.done)
		case msg := <-d.queue.C():
			_ = d.Handle(ctx, msg)
		case <-d.queue.Closed():
			d.queue.Drain(func(msg bus.Message) {
				_ = d.Handle(ctx, msg)
			})
			return nil
		}
	}
}

// Query runs fn on the dispatch goroutine between two messages. fn must not
// keep references to the store after it returns.
func (d *Dispatcher) Query(ctx context.Context, fn func(*ledger.Store)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case d.queries <- q:
	case <-d.stopped:
		return exception.ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one message synchronously. Outside of Run it is only safe
// to call while no Run is active, as the replay tool does.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.Message) error {
	start := d.now()
	msg.Header.Seq = d.seq.Add(1)
	d.metrics.ObserveMessage(msg.Header, start)

	if d.journal != nil {
		if err := d.journal.Append(msg.Header, msg.Payload); err != nil {
			d.metrics.IncJournalError()
			logs.Errorf("journal append seq %d, err: %+v", msg.Header.Seq, err)
		}
	}

	err := d.process(ctx, msg)

	end := d.now()
	processing := end.Sub(start)
	total := processing
	if msg.Header.TsRecv > 0 {
		total = time.Duration(end.UnixNano() - msg.Header.TsRecv)
	}
	outcome := Classify(err)
	d.metrics.ObserveOutcome(outcome, processing)
	d.perf.AddMessage(msg.Header.Type, total, processing)

	switch outcome {
	case obs.OutcomeApplied:
	case obs.OutcomeInsufficientFunds, obs.OutcomeDuplicate:
		logs.Infof("reject %s session %d seq %d, err: %+v", msg.Header.Type, msg.Header.Session, msg.Header.Seq, err)
	default:
		logs.Errorf("drop %s session %d seq %d, err: %+v", msg.Header.Type, msg.Header.Session, msg.Header.Seq, err)
	}
	return err
}

func (d *Dispatcher) process(ctx context.Context, msg bus.Message) (err error) {
	p, ok := d.router.Route(msg.Header.Type)
	if !ok {
		return errors.Wrapf(exception.ErrUnroutableType, "type %s", msg.Header.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", exception.ErrProcessorPanic, r)
		}
	}()
	return p.Process(ctx, msg)
}

// Seq returns the sequence number of the last handled message.
func (d *Dispatcher) Seq() uint64 {
	return d.seq.Load()
}

// Classify maps a processing error to its outcome.
func Classify(err error) obs.Outcome {
	switch {
	case err == nil:
		return obs.OutcomeApplied
	case errors.Is(err, exception.ErrMalformedPayload):
		return obs.OutcomeMalformed
	case errors.Is(err, exception.ErrAssetNotFound):
		return obs.OutcomeAssetNotFound
	case errors.Is(err, exception.ErrInsufficientFunds):
		return obs.OutcomeInsufficientFunds
	case errors.Is(err, exception.ErrDuplicateOperation):
		return obs.OutcomeDuplicate
	case errors.Is(err, exception.ErrUnroutableType):
		return obs.OutcomeUnroutable
	case errors.Is(err, exception.ErrProcessorPanic):
		return obs.OutcomePanic
	default:
		return obs.OutcomeFailed
	}
}
