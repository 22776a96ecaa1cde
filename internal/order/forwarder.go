package order

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"engine/internal/bus"
	"engine/internal/errors"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// Matcher is the external order matching collaborator.
type Matcher interface {
	Submit(ctx context.Context, header schema.MessageHeader, payload []byte) error
}

// Forwarder hands order messages from the dispatch goroutine to a matcher
// through a bounded queue drained by a worker pool. One forwarder serves one
// order type.
type Forwarder struct {
	name    string
	matcher Matcher

	running atomic.Bool
	worker  int
	queue   chan bus.Message
	wg      sync.WaitGroup
}

func NewForwarder(name string, workerCount, queueSize int, matcher Matcher) (*Forwarder, error) {
	if matcher == nil {
		return nil, exception.ErrOrderNilMatcher
	}
	if workerCount <= 0 || queueSize <= 0 {
		return nil, errors.Wrapf(exception.ErrOrderInvalidWorkerConfig, "workers %d queue %d", workerCount, queueSize)
	}
	return &Forwarder{
		name:    name,
		matcher: matcher,
		worker:  workerCount,
		queue:   make(chan bus.Message, queueSize),
	}, nil
}

// Process enqueues msg without blocking the caller.
func (f *Forwarder) Process(_ context.Context, msg bus.Message) error {
	select {
	case f.queue <- msg:
		return nil
	default:
		return errors.Wrapf(exception.ErrOrderQueueFull, "%s seq %d", f.name, msg.Header.Seq)
	}
}

// Run starts the workers. They stop when ctx is done.
func (f *Forwarder) Run(ctx context.Context) {
	if f.running.Swap(true) {
		return
	}

	for range f.worker {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.work(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

// Len returns the number of queued orders.
func (f *Forwarder) Len() int {
	return len(f.queue)
}

func (f *Forwarder) work(ctx context.Context) {
	for {
		select {
		case msg := <-f.queue:
			if err := f.matcher.Submit(ctx, msg.Header, msg.Payload); err != nil {
				logs.Errorf("%s submit session %d seq %d, err: %+v", f.name, msg.Header.Session, msg.Header.Seq, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// LogMatcher logs orders instead of matching them. It stands in for the
// matching service when none is configured.
type LogMatcher struct {
	Name string
}

func (m LogMatcher) Submit(_ context.Context, header schema.MessageHeader, payload []byte) error {
	logs.Infof("%s order session %d seq %d, %d bytes", m.Name, header.Session, header.Seq, len(payload))
	return nil
}
