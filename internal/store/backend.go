package store

import (
	"context"

	"engine/internal/schema"
)

// Backend is the durable side of the ledger. The engine calls it
// synchronously from the dispatch goroutine.
type Backend interface {
	LoadWallet(ctx context.Context, clientID, assetID string) (schema.Wallet, bool, error)
	SaveWallet(ctx context.Context, wallet schema.Wallet) error
	LoadAllAssets(ctx context.Context) ([]schema.Asset, error)
}
