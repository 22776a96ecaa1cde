package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"engine/internal/schema"
)

// Snapshot captures every wallet at a journal position. OperationIDs holds
// the business ids still inside the duplicate window, oldest first.
type Snapshot struct {
	Timestamp    int64           `json:"timestamp"`
	LastSeq      uint64          `json:"lastSeq"`
	Wallets      []schema.Wallet `json:"wallets"`
	OperationIDs []string        `json:"operationIds,omitempty"`
}

// NewSnapshot copies wallets into a snapshot ordered by client then asset.
func NewSnapshot(lastSeq uint64, wallets []schema.Wallet) Snapshot {
	entries := append([]schema.Wallet(nil), wallets...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ClientID != entries[j].ClientID {
			return entries[i].ClientID < entries[j].ClientID
		}
		return entries[i].AssetID < entries[j].AssetID
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Wallets:   entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON. Amounts are written as
// decimal strings so nothing is lost to float conversion.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same wallets with equal
// amounts. Timestamps and sequence numbers are ignored.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Wallets) != len(actual.Wallets) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Wallets), len(actual.Wallets))
	}
	type key struct{ client, asset string }
	want := make(map[key]schema.Wallet, len(expected.Wallets))
	for _, w := range expected.Wallets {
		want[key{w.ClientID, w.AssetID}] = w
	}
	for _, got := range actual.Wallets {
		w, ok := want[key{got.ClientID, got.AssetID}]
		if !ok {
			return fmt.Errorf("snapshot missing wallet: client=%s asset=%s", got.ClientID, got.AssetID)
		}
		if !w.Balance.Equal(got.Balance) || !w.Reserved.Equal(got.Reserved) {
			return fmt.Errorf("snapshot wallet mismatch: client=%s asset=%s expected=%s/%s actual=%s/%s",
				got.ClientID, got.AssetID, w.Balance, w.Reserved, got.Balance, got.Reserved)
		}
	}
	return nil
}
