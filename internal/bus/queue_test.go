package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/schema"
)

func message(seq uint64) Message {
	h := schema.NewHeader(schema.MessageCashInOutOperation, 1, 0)
	h.Seq = seq
	return Message{Header: h}
}

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(message(1)))
	assert.ErrorIs(t, q.TryPublish(message(2)), ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestQueuePublishAfterClose(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(message(1)), ErrQueueClosed)
	assert.ErrorIs(t, q.Publish(t.Context(), message(1)), ErrQueueClosed)
}

func TestQueuePublishBlocksUntilContextDone(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(t.Context(), message(1)))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, message(2)), context.DeadlineExceeded)
}

func TestQueueRunPreservesOrderAndDrainsOnClose(t *testing.T) {
	q := NewQueue(16)
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, q.TryPublish(message(i)))
	}
	q.Close()

	var got []uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(t.Context(), func(m Message) {
			got = append(got, m.Header.Seq)
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for run to drain")
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestQueueCloseLosesNoAcceptedMessage(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 50; round++ {
		q := NewQueue(4)
		var accepted, handled atomic.Int64

		consumed := make(chan struct{})
		go func() {
			defer close(consumed)
			q.Run(ctx, func(Message) { handled.Add(1) })
		}()

		var wg sync.WaitGroup
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					err := q.Publish(ctx, message(uint64(i)))
					if err == nil {
						accepted.Add(1)
						continue
					}
					assert.ErrorIs(t, err, ErrQueueClosed)
				}
			}()
		}
		time.Sleep(time.Duration(round%5) * 100 * time.Microsecond)
		q.Close()

		wg.Wait()
		<-consumed
		assert.Equal(t, accepted.Load(), handled.Load(), "round %d", round)
	}
}

func TestQueueDrainWaitsForPublisher(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(message(1)))

	published := make(chan error, 1)
	go func() { published <- q.Publish(context.Background(), message(2)) }()
	require.Eventually(t, func() bool { return q.inflight.Load() == 1 }, time.Second, time.Millisecond)
	q.Close()

	var seqs []uint64
	q.Drain(func(m Message) { seqs = append(seqs, m.Header.Seq) })
	err := <-published
	if err == nil {
		assert.Equal(t, []uint64{1, 2}, seqs)
	} else {
		assert.ErrorIs(t, err, ErrQueueClosed)
		assert.Equal(t, []uint64{1}, seqs)
	}
}
