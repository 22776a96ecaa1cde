package store

import (
	"context"
	"sort"
	"sync"

	"engine/internal/schema"
)

type walletKey struct {
	clientID string
	assetID  string
}

// Memory is an in-process Backend. It is safe for concurrent use so tests
// and tools can inspect it while the engine runs.
type Memory struct {
	mu      sync.RWMutex
	wallets map[walletKey]schema.Wallet
	assets  map[string]schema.Asset
}

var _ Backend = (*Memory)(nil)

// NewMemory creates a backend seeded with the given assets.
func NewMemory(assets ...schema.Asset) *Memory {
	m := &Memory{
		wallets: make(map[walletKey]schema.Wallet),
		assets:  make(map[string]schema.Asset, len(assets)),
	}
	for _, a := range assets {
		m.assets[a.ID] = a
	}
	return m
}

// PutAsset adds or replaces an asset definition.
func (m *Memory) PutAsset(asset schema.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
}

// SaveAsset is PutAsset with the Gorm signature.
func (m *Memory) SaveAsset(_ context.Context, asset schema.Asset) error {
	m.PutAsset(asset)
	return nil
}

func (m *Memory) LoadWallet(_ context.Context, clientID, assetID string) (schema.Wallet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[walletKey{clientID: clientID, assetID: assetID}]
	return w, ok, nil
}

func (m *Memory) SaveWallet(_ context.Context, wallet schema.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[walletKey{clientID: wallet.ClientID, assetID: wallet.AssetID}] = wallet
	return nil
}

func (m *Memory) LoadAllAssets(context.Context) ([]schema.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Wallets returns every stored wallet ordered by client then asset.
func (m *Memory) Wallets() []schema.Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}
