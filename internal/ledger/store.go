package ledger

import (
	"context"

	"github.com/tidwall/btree"

	"engine/internal/errors"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// WalletBackend is the durable side the store writes through to.
type WalletBackend interface {
	LoadWallet(ctx context.Context, clientID, assetID string) (schema.Wallet, bool, error)
	SaveWallet(ctx context.Context, wallet schema.Wallet) error
}

// Store is the in-memory wallet map in front of a WalletBackend.
//
// Store is not safe for concurrent use. It is owned by the dispatch
// goroutine; other goroutines read it through the dispatcher.
type Store struct {
	backend WalletBackend
	wallets btree.Map[string, schema.Wallet]
}

// NewStore creates an empty store.
func NewStore(backend WalletBackend) (*Store, error) {
	if backend == nil {
		return nil, exception.ErrNilBackend
	}
	return &Store{backend: backend}, nil
}

func walletKey(clientID, assetID string) string {
	return clientID + "\x00" + assetID
}

// Wallet returns the wallet of (clientID, assetID). A wallet missing in memory
// is loaded from the backend and cached. ok is false when neither has it.
func (s *Store) Wallet(ctx context.Context, clientID, assetID string) (schema.Wallet, bool, error) {
	key := walletKey(clientID, assetID)
	if w, ok := s.wallets.Get(key); ok {
		return w, true, nil
	}

	w, ok, err := s.backend.LoadWallet(ctx, clientID, assetID)
	if err != nil {
		return schema.Wallet{}, false, errors.Wrapf(err, "load wallet %s/%s", clientID, assetID)
	}
	if !ok {
		return schema.Wallet{}, false, nil
	}
	s.wallets.Set(key, w)
	return w, true, nil
}

// Put upserts the wallet. The backend is written first; memory only changes
// when the backend accepted the write.
func (s *Store) Put(ctx context.Context, w schema.Wallet) error {
	if err := s.backend.SaveWallet(ctx, w); err != nil {
		return errors.Wrapf(err, "save wallet %s/%s", w.ClientID, w.AssetID)
	}
	s.wallets.Set(walletKey(w.ClientID, w.AssetID), w)
	return nil
}

// Len returns the number of wallets held in memory.
func (s *Store) Len() int {
	return s.wallets.Len()
}

// Snapshot copies every wallet held in memory, ordered by client then asset.
func (s *Store) Snapshot() []schema.Wallet {
	out := make([]schema.Wallet, 0, s.wallets.Len())
	s.wallets.Scan(func(_ string, w schema.Wallet) bool {
		out = append(out, w)
		return true
	})
	return out
}

// ClientWallets copies the in-memory wallets of one client, ordered by asset.
func (s *Store) ClientWallets(clientID string) []schema.Wallet {
	var out []schema.Wallet
	prefix := clientID + "\x00"
	s.wallets.Ascend(prefix, func(key string, w schema.Wallet) bool {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return false
		}
		out = append(out, w)
		return true
	})
	return out
}
