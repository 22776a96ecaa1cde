package state

import (
	"context"
	"fmt"

	"engine/internal/bus"
	"engine/internal/idempotency"
	"engine/internal/recorder"
	"engine/internal/schema"
)

// WalletSaver receives the wallets of a snapshot before replay starts.
type WalletSaver interface {
	SaveWallet(ctx context.Context, wallet schema.Wallet) error
}

// Handler applies one replayed message, as core.Dispatcher.Handle does.
type Handler interface {
	Handle(ctx context.Context, msg bus.Message) error
}

// RecoverConfig controls snapshot + journal recovery. When Dedup is set, the
// snapshot's operation ids are remembered in it before replay.
type RecoverConfig struct {
	JournalDir      string
	SnapshotPath    string
	FilePrefix      string
	Speed           float64
	DisableChecksum bool
	MaxPayloadSize  int
	Dedup           idempotency.Window
}

// RecoverResult summarizes a recovery run.
type RecoverResult struct {
	SnapshotSeq uint64
	LastSeq     uint64
	Replayed    int
	Rejected    int
}

// Recover seeds saver from the snapshot, if any, then replays the journal
// records after the snapshot position through h. A message that h rejects is
// counted and skipped, as it was when it was first processed.
func Recover(ctx context.Context, cfg RecoverConfig, saver WalletSaver, h Handler) (RecoverResult, error) {
	if cfg.JournalDir == "" {
		return RecoverResult{}, fmt.Errorf("journal dir is empty")
	}

	var res RecoverResult
	if cfg.SnapshotPath != "" {
		snap, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		for _, w := range snap.Wallets {
			if err := saver.SaveWallet(ctx, w); err != nil {
				return RecoverResult{}, fmt.Errorf("seed wallet %s/%s: %w", w.ClientID, w.AssetID, err)
			}
		}
		if cfg.Dedup != nil {
			for _, id := range snap.OperationIDs {
				if err := cfg.Dedup.Remember(ctx, id); err != nil {
					return RecoverResult{}, fmt.Errorf("seed operation id %s: %w", id, err)
				}
			}
		}
		res.SnapshotSeq = snap.LastSeq
		res.LastSeq = snap.LastSeq
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.JournalDir,
		FilePrefix:      cfg.FilePrefix,
		Speed:           cfg.Speed,
		FromSeq:         res.SnapshotSeq + 1,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	n, err := pb.Run(ctx, func(header schema.MessageHeader, payload []byte) error {
		msg := bus.Message{Header: header, Payload: append([]byte(nil), payload...)}
		if err := h.Handle(ctx, msg); err != nil {
			res.Rejected++
		}
		res.LastSeq = header.Seq
		return nil
	})
	res.Replayed = n
	if err != nil {
		return res, err
	}
	return res, nil
}
