package bus

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"engine/internal/schema"
)

var (
	ErrQueueFull   = errors.New("message queue full")
	ErrQueueClosed = errors.New("message queue closed")
)

// Message is the unit passed through the inbound queue.
type Message struct {
	Header  schema.MessageHeader
	Payload []byte
}

// Queue is a bounded, ordered message queue with a single consumer.
// The data channel is never closed, so a publish racing with Close is safe.
// Publishers in flight are counted so that Drain does not return while one of
// them may still land a message.
type Queue struct {
	ch       chan Message
	done     chan struct{}
	closed   atomic.Bool
	inflight atomic.Int64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

// TryPublish enqueues a message without blocking.
func (q *Queue) TryPublish(m Message) error {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish enqueues a message, waiting for room until ctx is done or the
// queue is closed. A nil error means the consumer will see the message.
func (q *Queue) Publish(ctx context.Context, m Message) error {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new messages. Messages already
// queued are still delivered to the consumer.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Drain hands every remaining message to handler once the queue is closed.
// It returns when the queue is empty and no publisher is in flight.
func (q *Queue) Drain(handler func(Message)) {
	for {
		if m, ok := q.TryNext(); ok {
			handler(m)
			continue
		}
		if q.inflight.Load() == 0 {
			if m, ok := q.TryNext(); ok {
				handler(m)
				continue
			}
			return
		}
		runtime.Gosched()
	}
}

// C exposes the receive side for consumers that multiplex other channels.
func (q *Queue) C() <-chan Message {
	return q.ch
}

// Closed is closed once Close has been called.
func (q *Queue) Closed() <-chan struct{} {
	return q.done
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// TryNext returns a queued message without blocking.
func (q *Queue) TryNext() (Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return Message{}, false
	}
}

// Run consumes messages until the context is done, or the queue is closed
// and drained.
func (q *Queue) Run(ctx context.Context, handler func(Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q.ch:
			handler(m)
		case <-q.done:
			q.Drain(handler)
			return
		}
	}
}
