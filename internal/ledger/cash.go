package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"engine/internal/bus"
	"engine/internal/codec"
	"engine/internal/errors"
	"engine/internal/idempotency"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// AssetSource resolves asset metadata.
type AssetSource interface {
	Get(ctx context.Context, assetID string) (schema.Asset, error)
}

// Emitter accepts audit records. Emit must not block.
type Emitter interface {
	Emit(rec schema.CashOperation)
}

// CashProcessor applies cash in/out operations.
type CashProcessor struct {
	assets AssetSource
	store  *Store
	audit  Emitter
	dedup  idempotency.Window
	newID  func() string
	now    func() time.Time
}

// CashOption configures a CashProcessor.
type CashOption func(*CashProcessor)

// WithDedup rejects operations whose business id is still in w.
func WithDedup(w idempotency.Window) CashOption {
	return func(p *CashProcessor) {
		p.dedup = w
	}
}

// WithIDGenerator overrides how audit record ids are generated.
func WithIDGenerator(fn func() string) CashOption {
	return func(p *CashProcessor) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithNow overrides the clock used when an operation carries no timestamp.
func WithNow(fn func() time.Time) CashOption {
	return func(p *CashProcessor) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewCashProcessor creates a processor.
func NewCashProcessor(assets AssetSource, store *Store, audit Emitter, opts ...CashOption) *CashProcessor {
	p := &CashProcessor{
		assets: assets,
		store:  store,
		audit:  audit,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodes and applies a MessageCashInOutOperation message.
func (p *CashProcessor) Process(ctx context.Context, msg bus.Message) error {
	op, err := codec.DecodeCashInOutOperation(msg.Payload)
	if err != nil {
		return err
	}
	_, err = p.Apply(ctx, op)
	return err
}

// Apply credits (positive volume) or debits (negative volume) a wallet and
// emits one audit record. A rejected operation changes nothing and emits
// nothing.
func (p *CashProcessor) Apply(ctx context.Context, op schema.CashInOutOperation) (schema.CashOperation, error) {
	if op.ID != "" && p.dedup != nil {
		seen, err := p.dedup.Seen(ctx, op.ID)
		if err != nil {
			return schema.CashOperation{}, errors.Wrap(err, "check operation id")
		}
		if seen {
			return schema.CashOperation{}, errors.Wrapf(exception.ErrDuplicateOperation, "operation %q", op.ID)
		}
	}

	asset, err := p.assets.Get(ctx, op.AssetID)
	if err != nil {
		return schema.CashOperation{}, err
	}

	wallet, _, err := p.store.Wallet(ctx, op.ClientID, op.AssetID)
	if err != nil {
		return schema.CashOperation{}, err
	}

	volume := FromFloat(op.Volume)
	proposed := Round(wallet.Balance.Add(volume), asset.Accuracy)
	if volume.IsNegative() && proposed.Sub(wallet.Reserved).IsNegative() {
		return schema.CashOperation{}, errors.Wrapf(exception.ErrInsufficientFunds,
			"client %s asset %s balance %s reserved %s volume %s",
			op.ClientID, op.AssetID, wallet.Balance, wallet.Reserved, volume)
	}

	wallet.ClientID = op.ClientID
	wallet.AssetID = op.AssetID
	wallet.Balance = proposed
	if err := p.store.Put(ctx, wallet); err != nil {
		return schema.CashOperation{}, err
	}

	if op.ID != "" && p.dedup != nil {
		if err := p.dedup.Remember(ctx, op.ID); err != nil {
			logs.Errorf("remember operation %s, err: %+v", op.ID, err)
		}
	}

	ts := p.now().UTC()
	if op.Timestamp > 0 {
		ts = time.UnixMilli(op.Timestamp).UTC()
	}
	rec := schema.CashOperation{
		ID:         p.newID(),
		BusinessID: op.ID,
		ClientID:   op.ClientID,
		Asset:      op.AssetID,
		Volume:     FormatVolume(volume, asset.Accuracy),
		Timestamp:  ts,
	}
	if p.audit != nil {
		p.audit.Emit(rec)
	}
	return rec, nil
}
