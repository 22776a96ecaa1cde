package ledger

import (
	"context"

	"engine/internal/bus"
	"engine/internal/codec"
	"engine/internal/schema"
)

// BalanceUpdateProcessor overwrites wallet balances. It is the administrative
// path: no rounding, no sufficiency check, no audit record.
type BalanceUpdateProcessor struct {
	store *Store
}

func NewBalanceUpdateProcessor(store *Store) *BalanceUpdateProcessor {
	return &BalanceUpdateProcessor{store: store}
}

// Process decodes and applies a MessageBalanceUpdate message.
func (p *BalanceUpdateProcessor) Process(ctx context.Context, msg bus.Message) error {
	upd, err := codec.DecodeBalanceUpdate(msg.Payload)
	if err != nil {
		return err
	}
	return p.Apply(ctx, upd)
}

// Apply sets the wallet balance to upd.Amount, keeping the reserved part.
func (p *BalanceUpdateProcessor) Apply(ctx context.Context, upd schema.BalanceUpdate) error {
	wallet, _, err := p.store.Wallet(ctx, upd.ClientID, upd.AssetID)
	if err != nil {
		return err
	}
	wallet.ClientID = upd.ClientID
	wallet.AssetID = upd.AssetID
	wallet.Balance = FromFloat(upd.Amount)
	return p.store.Put(ctx, wallet)
}
