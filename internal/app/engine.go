// Package app assembles the balance engine from its parts.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"engine/internal/asset"
	"engine/internal/audit"
	"engine/internal/bus"
	"engine/internal/core"
	"engine/internal/errors"
	"engine/internal/idempotency"
	"engine/internal/ledger"
	"engine/internal/obs"
	"engine/internal/ops"
	"engine/internal/order"
	"engine/internal/recorder"
	"engine/internal/schema"
	"engine/internal/store"
)

// AssetSaver persists asset definitions.
type AssetSaver interface {
	SaveAsset(ctx context.Context, asset schema.Asset) error
}

// Deps are the collaborators an Engine is built on. Only Backend is
// required.
type Deps struct {
	Backend       store.Backend
	Dedup         idempotency.Window
	Publisher     audit.Publisher
	LimitMatcher  order.Matcher
	MarketMatcher order.Matcher
	// StartSeq is the sequence numbering continues after. With a journal the
	// last journaled sequence is used when it is higher.
	StartSeq      uint64
}

// Engine owns the inbound queue, the dispatch goroutine and the workers
// around it.
type Engine struct {
	Queue      *bus.Queue
	Metrics    *obs.Metrics
	Perf       *obs.PerformanceStats
	Assets     *asset.Cache
	Store      *ledger.Store
	Dispatcher *core.Dispatcher

	audit     *audit.Queue
	publisher audit.Publisher
	limit     *order.Forwarder
	market    *order.Forwarder
	journal   *recorder.Writer
}

// New wires an Engine from cfg. The asset cache is loaded once before New
// returns.
func New(ctx context.Context, cfg ops.Loaded, deps Deps) (*Engine, error) {
	if deps.Backend == nil {
		return nil, errors.New("engine backend is nil")
	}
	if deps.Dedup == nil {
		deps.Dedup = idempotency.NewMemory(cfg.DedupWindow)
	}
	if deps.Publisher == nil {
		deps.Publisher = audit.LogPublisher{}
	}
	if deps.LimitMatcher == nil {
		deps.LimitMatcher = order.LogMatcher{Name: "limit"}
	}
	if deps.MarketMatcher == nil {
		deps.MarketMatcher = order.LogMatcher{Name: "market"}
	}

	e := &Engine{
		Queue:     bus.NewQueue(cfg.QueueSize),
		Metrics:   obs.NewMetrics(),
		Perf:      obs.NewPerformanceStats(),
		publisher: deps.Publisher,
	}
	e.audit = audit.NewQueue(cfg.Audit.QueueSize, e.Metrics)

	e.Assets = asset.NewCache(deps.Backend, cfg.AssetCacheTTL)
	if err := e.Assets.Refresh(ctx); err != nil {
		return nil, errors.Wrap(err, "load assets")
	}

	st, err := ledger.NewStore(deps.Backend)
	if err != nil {
		return nil, err
	}
	e.Store = st

	if e.limit, err = order.NewForwarder("limit", cfg.Orders.Workers, cfg.Orders.QueueSize, deps.LimitMatcher); err != nil {
		return nil, err
	}
	if e.market, err = order.NewForwarder("market", cfg.Orders.Workers, cfg.Orders.QueueSize, deps.MarketMatcher); err != nil {
		return nil, err
	}

	router := core.NewRouter()
	routes := []struct {
		t schema.MessageType
		p core.Processor
	}{
		{schema.MessageCashInOutOperation, ledger.NewCashProcessor(e.Assets, st, e.audit, ledger.WithDedup(deps.Dedup))},
		{schema.MessageBalanceUpdate, ledger.NewBalanceUpdateProcessor(st)},
		{schema.MessageLimitOrder, e.limit},
		{schema.MessageMarketOrder, e.market},
	}
	for _, r := range routes {
		if err := router.Register(r.t, r.p); err != nil {
			return nil, err
		}
	}

	opts := []core.Option{
		core.WithMetrics(e.Metrics),
		core.WithPerformanceStats(e.Perf),
	}
	if cfg.JournalDir != "" {
		last, err := recorder.LastSeq(cfg.JournalDir, "")
		if err != nil {
			return nil, errors.Wrap(err, "read journal position")
		}
		if last > deps.StartSeq {
			deps.StartSeq = last
		}
		if e.journal, err = recorder.NewWriter(recorder.DefaultConfig(cfg.JournalDir)); err != nil {
			return nil, errors.Wrap(err, "open journal")
		}
		opts = append(opts, core.WithJournal(e.journal))
		logs.Infof("journal %s, continue after seq %d", cfg.JournalDir, deps.StartSeq)
	}
	opts = append(opts, core.WithStartSeq(deps.StartSeq))
	e.Dispatcher = core.NewDispatcher(e.Queue, router, st, opts...)

	return e, nil
}

// Run starts the workers and blocks on the dispatch loop. When the loop
// returns, order workers stop, pending audit records are flushed and the
// journal is closed.
func (e *Engine) Run(ctx context.Context) error {
	if e.journal != nil {
		if err := e.journal.Start(context.Background()); err != nil {
			return err
		}
	}

	auditCtx, cancelAudit := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.audit.Run(auditCtx, e.publisher)
	}()

	orderCtx, cancelOrders := context.WithCancel(context.Background())
	e.limit.Run(orderCtx)
	e.market.Run(orderCtx)

	err := e.Dispatcher.Run(ctx)

	cancelOrders()
	e.limit.Wait()
	e.market.Wait()

	cancelAudit()
	wg.Wait()

	if e.journal != nil {
		if jerr := e.journal.Close(); jerr != nil {
			logs.Errorf("close journal, err: %+v", jerr)
		}
	}
	return err
}

// Stop closes the inbound queue. Run returns once the queued messages are
// processed.
func (e *Engine) Stop() {
	e.Queue.Close()
}

// ReportStats logs and resets the per type performance stats every interval
// until ctx is done.
func (e *Engine) ReportStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range e.Perf.StatsAndReset() {
				logs.Infof("stats %s count %d avg total %s avg processing %s", s.Type, s.Count, s.AvgTotal, s.AvgProcessing)
			}
			snap := e.Metrics.Snapshot()
			logs.Infof("stats queue %d audit pending %d queue drops %d audit drops %d journal errors %d",
				e.Queue.Len(), e.audit.Len(), snap.QueueDrops, snap.AuditDrops, snap.JournalErrors)
		}
	}
}

// SeedAssets saves the configured assets to saver.
func SeedAssets(ctx context.Context, saver AssetSaver, assets []schema.Asset) error {
	for _, a := range assets {
		if err := saver.SaveAsset(ctx, a); err != nil {
			return errors.Wrapf(err, "seed asset %s", a.ID)
		}
	}
	return nil
}
