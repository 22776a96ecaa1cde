package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/bus"
	"engine/internal/ledger"
	"engine/internal/obs"
	"engine/internal/schema"
	"engine/internal/store"
	"engine/pkg/exception"
)

type memJournal struct {
	mu      sync.Mutex
	headers []schema.MessageHeader
}

func (j *memJournal) Append(header schema.MessageHeader, _ []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.headers = append(j.headers, header)
	return nil
}

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	st, err := ledger.NewStore(store.NewMemory())
	require.NoError(t, err)
	return st
}

func msg(t schema.MessageType, payload string) bus.Message {
	return bus.Message{Header: schema.MessageHeader{Type: t}, Payload: []byte(payload)}
}

func TestRouterRejectsDuplicateRoute(t *testing.T) {
	r := NewRouter()
	noop := ProcessorFunc(func(context.Context, bus.Message) error { return nil })

	require.NoError(t, r.Register(schema.MessageLimitOrder, noop))
	require.NoError(t, r.Register(schema.MessageMarketOrder, noop))
	assert.ErrorIs(t, r.Register(schema.MessageLimitOrder, noop), exception.ErrRouteConflict)
	assert.ErrorIs(t, r.Register(schema.MessageBalanceUpdate, nil), exception.ErrNilProcessor)
	assert.Equal(t, 2, r.Len())

	_, ok := r.Route(schema.MessageCashInOutOperation)
	assert.False(t, ok)
}

func TestDispatcherRunsInOrderAndSurvivesFailures(t *testing.T) {
	q := bus.NewQueue(16)
	metrics := obs.NewMetrics()
	journal := &memJournal{}

	var got []string
	r := NewRouter()
	require.NoError(t, r.Register(schema.MessageCashInOutOperation, ProcessorFunc(func(_ context.Context, m bus.Message) error {
		got = append(got, string(m.Payload))
		switch string(m.Payload) {
		case "boom":
			panic("kaboom")
		case "bad":
			return exception.ErrMalformedPayload
		}
		return nil
	})))

	d := NewDispatcher(q, r, newTestStore(t), WithMetrics(metrics), WithJournal(journal))

	for _, m := range []bus.Message{
		msg(schema.MessageCashInOutOperation, "a"),
		msg(schema.MessageCashInOutOperation, "boom"),
		msg(schema.MessageType(200), "x"),
		msg(schema.MessageCashInOutOperation, "bad"),
		msg(schema.MessageCashInOutOperation, "b"),
	} {
		require.NoError(t, q.TryPublish(m))
	}
	q.Close()

	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, []string{"a", "boom", "bad", "b"}, got)
	assert.Equal(t, uint64(5), d.Seq())
	require.Len(t, journal.headers, 5)
	for i, h := range journal.headers {
		assert.Equal(t, uint64(i+1), h.Seq)
	}

	s := metrics.Snapshot()
	assert.Equal(t, uint64(2), s.OutcomeCounts[obs.OutcomeApplied])
	assert.Equal(t, uint64(1), s.OutcomeCounts[obs.OutcomePanic])
	assert.Equal(t, uint64(1), s.OutcomeCounts[obs.OutcomeUnroutable])
	assert.Equal(t, uint64(1), s.OutcomeCounts[obs.OutcomeMalformed])
}

func TestDispatcherHandleErrors(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(schema.MessageBalanceUpdate, ProcessorFunc(func(context.Context, bus.Message) error {
		panic("nil map")
	})))
	d := NewDispatcher(bus.NewQueue(1), r, newTestStore(t))

	assert.ErrorIs(t, d.Handle(context.Background(), msg(schema.MessageBalanceUpdate, "")), exception.ErrProcessorPanic)
	assert.ErrorIs(t, d.Handle(context.Background(), msg(schema.MessagePing, "")), exception.ErrUnroutableType)
}

func TestDispatcherQuery(t *testing.T) {
	q := bus.NewQueue(4)
	st := newTestStore(t)
	d := NewDispatcher(q, NewRouter(), st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var n int
	require.NoError(t, d.Query(context.Background(), func(s *ledger.Store) {
		n = s.Len()
	}))
	assert.Equal(t, 0, n)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	err := d.Query(context.Background(), func(*ledger.Store) {})
	assert.ErrorIs(t, err, exception.ErrDispatcherStopped)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, obs.OutcomeApplied, Classify(nil))
	assert.Equal(t, obs.OutcomeInsufficientFunds, Classify(exception.ErrInsufficientFunds))
	assert.Equal(t, obs.OutcomeDuplicate, Classify(exception.ErrDuplicateOperation))
	assert.Equal(t, obs.OutcomeAssetNotFound, Classify(exception.ErrAssetNotFound))
	assert.Equal(t, obs.OutcomeFailed, Classify(context.DeadlineExceeded))
}
