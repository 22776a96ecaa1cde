package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"engine/internal/asset"
	"engine/internal/bus"
	"engine/internal/core"
	"engine/internal/idempotency"
	"engine/internal/ledger"
	"engine/internal/obs"
	"engine/internal/ops"
	"engine/internal/schema"
	"engine/internal/state"
	"engine/internal/store"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: journal)")
	configPath := flag.String("config", "", "Path to JSON config, for the asset list")
	snapshotIn := flag.String("snapshot-in", "", "Snapshot to start from (optional)")
	snapshotOut := flag.String("snapshot-out", "", "Write the resulting wallets here (optional)")
	compare := flag.String("compare", "", "Compare the resulting wallets against this snapshot (optional)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := run(context.Background(), cfg, replayOptions{
		recover: state.RecoverConfig{
			JournalDir:      *dir,
			SnapshotPath:    *snapshotIn,
			FilePrefix:      *prefix,
			Speed:           *speed,
			DisableChecksum: *noChecksum,
			MaxPayloadSize:  *maxPayload,
		},
		snapshotOut: *snapshotOut,
		compare:     *compare,
	}); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

type replayOptions struct {
	recover     state.RecoverConfig
	snapshotOut string
	compare     string
}

type discardEmitter struct{}

func (discardEmitter) Emit(schema.CashOperation) {}

func run(ctx context.Context, cfg ops.Loaded, opt replayOptions) error {
	var startSeq uint64
	if opt.recover.SnapshotPath != "" {
		snap, err := state.ReadSnapshot(opt.recover.SnapshotPath)
		if err != nil {
			return err
		}
		startSeq = snap.LastSeq
	}

	backend := store.NewMemory(cfg.Assets...)
	st, err := ledger.NewStore(backend)
	if err != nil {
		return err
	}

	dedup := idempotency.NewMemory(cfg.DedupWindow)
	opt.recover.Dedup = dedup

	// Orders were forwarded when first seen; replay only accepts them.
	accept := core.ProcessorFunc(func(context.Context, bus.Message) error { return nil })
	router := core.NewRouter()
	for t, p := range map[schema.MessageType]core.Processor{
		schema.MessageCashInOutOperation: ledger.NewCashProcessor(
			asset.NewCache(backend, cfg.AssetCacheTTL), st, discardEmitter{},
			ledger.WithDedup(dedup),
		),
		schema.MessageBalanceUpdate: ledger.NewBalanceUpdateProcessor(st),
		schema.MessageLimitOrder:    accept,
		schema.MessageMarketOrder:   accept,
	} {
		if err := router.Register(t, p); err != nil {
			return err
		}
	}

	metrics := obs.NewMetrics()
	dispatcher := core.NewDispatcher(bus.NewQueue(1), router, st,
		core.WithMetrics(metrics),
		core.WithStartSeq(startSeq),
	)

	res, err := state.Recover(ctx, opt.recover, backend, dispatcher)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot seq=%d replayed=%d rejected=%d last seq=%d\n", res.SnapshotSeq, res.Replayed, res.Rejected, res.LastSeq)
	for o, n := range metrics.Snapshot().OutcomeCounts {
		fmt.Printf("  %s=%d\n", o, n)
	}

	result := state.NewSnapshot(res.LastSeq, backend.Wallets())
	result.OperationIDs = dedup.IDs()
	if opt.snapshotOut != "" {
		if err := state.WriteSnapshot(opt.snapshotOut, result); err != nil {
			return err
		}
		fmt.Printf("snapshot written to %s (%d wallets)\n", opt.snapshotOut, len(result.Wallets))
	}
	if opt.compare != "" {
		expected, err := state.ReadSnapshot(opt.compare)
		if err != nil {
			return err
		}
		if err := state.CompareSnapshots(expected, result); err != nil {
			return err
		}
		fmt.Println("wallets match")
	}
	return nil
}
