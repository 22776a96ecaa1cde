package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/asset"
	"engine/internal/bus"
	"engine/internal/codec"
	"engine/internal/idempotency"
	"engine/internal/schema"
	"engine/internal/store"
	"engine/pkg/exception"
)

type captureEmitter struct {
	records []schema.CashOperation
}

func (e *captureEmitter) Emit(rec schema.CashOperation) {
	e.records = append(e.records, rec)
}

type fixture struct {
	backend *store.Memory
	store   *Store
	audit   *captureEmitter
	cash    *CashProcessor
	update  *BalanceUpdateProcessor
}

func newFixture(t *testing.T, opts ...CashOption) *fixture {
	t.Helper()
	backend := store.NewMemory(
		schema.Asset{ID: "Asset1", Accuracy: 2},
		schema.Asset{ID: "Asset5", Accuracy: 8},
	)
	st, err := NewStore(backend)
	require.NoError(t, err)

	seq := 0
	opts = append([]CashOption{WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("rec-%d", seq)
	})}, opts...)

	audit := &captureEmitter{}
	return &fixture{
		backend: backend,
		store:   st,
		audit:   audit,
		cash:    NewCashProcessor(asset.NewCache(backend, time.Minute), st, audit, opts...),
		update:  NewBalanceUpdateProcessor(st),
	}
}

func (f *fixture) setBalance(t *testing.T, client, assetID string, amount float64) {
	t.Helper()
	require.NoError(t, f.update.Apply(context.Background(), schema.BalanceUpdate{ClientID: client, AssetID: assetID, Amount: amount}))
}

func (f *fixture) balance(t *testing.T, client, assetID string) decimal.Decimal {
	t.Helper()
	w, ok, err := f.store.Wallet(context.Background(), client, assetID)
	require.NoError(t, err)
	require.True(t, ok)
	return w.Balance
}

func cashOp(client, assetID string, volume float64) schema.CashInOutOperation {
	return schema.CashInOutOperation{ClientID: client, AssetID: assetID, Volume: volume, Timestamp: 1700000000000}
}

func TestCashCredit(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, "Client1", "Asset1", 100)

	rec, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", 50))
	require.NoError(t, err)

	assert.Equal(t, "150", f.balance(t, "Client1", "Asset1").String())
	assert.Equal(t, "50.00", rec.Volume)
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, rec, f.audit.records[0])
	assert.Equal(t, "Client1", rec.ClientID)
	assert.Equal(t, "Asset1", rec.Asset)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), rec.Timestamp)
}

func TestCashCreditSmallAmount(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, "Client1", "Asset1", 100)

	rec, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", 0.01))
	require.NoError(t, err)

	assert.Equal(t, "100.01", f.balance(t, "Client1", "Asset1").String())
	assert.Equal(t, "0.01", rec.Volume)
}

func TestCashDebitThenInsufficient(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, "Client1", "Asset1", 100)

	rec, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", -50))
	require.NoError(t, err)
	assert.Equal(t, "-50.00", rec.Volume)
	assert.Equal(t, "50", f.balance(t, "Client1", "Asset1").String())

	_, err = f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", -60))
	assert.ErrorIs(t, err, exception.ErrInsufficientFunds)
	assert.Equal(t, "50", f.balance(t, "Client1", "Asset1").String())
	assert.Len(t, f.audit.records, 1)

	w, ok, err := f.backend.LoadWallet(context.Background(), "Client1", "Asset1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "50", w.Balance.String())
}

func TestBalanceUpdateOverrides(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, "Client1", "Asset1", 100)
	_, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", 25))
	require.NoError(t, err)

	f.setBalance(t, "Client1", "Asset1", 999)

	assert.Equal(t, "999", f.balance(t, "Client1", "Asset1").String())
	assert.Len(t, f.audit.records, 1)
}

func TestCashDebitAfterUpdateIsExact(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, "Client1", "Asset1", 29.99)

	_, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset1", -0.01))
	require.NoError(t, err)

	got := f.balance(t, "Client1", "Asset1")
	assert.True(t, got.Equal(decimal.RequireFromString("29.98")), "got %s", got)
	assert.Equal(t, "29.98", got.String())
}

func TestCashDebitRespectsReserved(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Put(context.Background(), schema.Wallet{
		ClientID: "Client1",
		AssetID:  "Asset5",
		Balance:  decimal.RequireFromString("1.00418803"),
		Reserved: decimal.RequireFromString("0.00418803"),
	}))

	rec, err := f.cash.Apply(context.Background(), cashOp("Client1", "Asset5", -1))
	require.NoError(t, err)
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "-1.00000000", rec.Volume)
	assert.Equal(t, "0.00418803", f.balance(t, "Client1", "Asset5").String())

	_, err = f.cash.Apply(context.Background(), cashOp("Client1", "Asset5", -0.00000001))
	assert.ErrorIs(t, err, exception.ErrInsufficientFunds)
	assert.Len(t, f.audit.records, 1)
}

func TestCashCreditCreatesWallet(t *testing.T) {
	f := newFixture(t)

	rec, err := f.cash.Apply(context.Background(), cashOp("Client2", "Asset1", 12.345))
	require.NoError(t, err)

	assert.Equal(t, "12.35", f.balance(t, "Client2", "Asset1").String())
	assert.Equal(t, "12.35", rec.Volume)
}

func TestCashDebitUnknownWalletRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.cash.Apply(context.Background(), cashOp("Client3", "Asset1", -1))
	assert.ErrorIs(t, err, exception.ErrInsufficientFunds)

	_, ok, err := f.store.Wallet(context.Background(), "Client3", "Asset1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.audit.records)
}

func TestCashUnknownAsset(t *testing.T) {
	f := newFixture(t)

	_, err := f.cash.Apply(context.Background(), cashOp("Client1", "Nope", 1))
	assert.ErrorIs(t, err, exception.ErrAssetNotFound)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.audit.records)
}

func TestCashDuplicateBusinessID(t *testing.T) {
	f := newFixture(t, WithDedup(idempotency.NewMemory(16)))

	op := cashOp("Client1", "Asset1", 10)
	op.ID = "biz-1"
	_, err := f.cash.Apply(context.Background(), op)
	require.NoError(t, err)

	_, err = f.cash.Apply(context.Background(), op)
	assert.ErrorIs(t, err, exception.ErrDuplicateOperation)
	assert.Equal(t, "10", f.balance(t, "Client1", "Asset1").String())
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "biz-1", f.audit.records[0].BusinessID)
}

func TestCashRejectedIDCanBeRetried(t *testing.T) {
	f := newFixture(t, WithDedup(idempotency.NewMemory(16)))

	op := cashOp("Client1", "Asset1", -10)
	op.ID = "biz-2"
	_, err := f.cash.Apply(context.Background(), op)
	assert.ErrorIs(t, err, exception.ErrInsufficientFunds)

	f.setBalance(t, "Client1", "Asset1", 10)
	_, err = f.cash.Apply(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, "0", f.balance(t, "Client1", "Asset1").String())
}

func TestCashProcessDecodesPayload(t *testing.T) {
	f := newFixture(t)

	payload := codec.EncodeCashInOutOperation(nil, cashOp("Client1", "Asset1", 5))
	require.NoError(t, f.cash.Process(context.Background(), bus.Message{Payload: payload}))
	assert.Equal(t, "5", f.balance(t, "Client1", "Asset1").String())

	err := f.cash.Process(context.Background(), bus.Message{Payload: []byte{0xff}})
	assert.ErrorIs(t, err, exception.ErrMalformedPayload)
	assert.Len(t, f.audit.records, 1)
}

func TestBalanceUpdateProcessKeepsReserved(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Put(context.Background(), schema.Wallet{
		ClientID: "Client1",
		AssetID:  "Asset1",
		Balance:  decimal.NewFromInt(10),
		Reserved: decimal.NewFromInt(4),
	}))

	payload := codec.EncodeBalanceUpdate(nil, schema.BalanceUpdate{UID: 7, ClientID: "Client1", AssetID: "Asset1", Amount: 1.005})
	require.NoError(t, f.update.Process(context.Background(), bus.Message{Payload: payload}))

	w, ok, err := f.store.Wallet(context.Background(), "Client1", "Asset1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.005", w.Balance.String())
	assert.Equal(t, "4", w.Reserved.String())
	assert.Empty(t, f.audit.records)
}

type failingBackend struct {
	*store.Memory
	err error
}

func (b failingBackend) SaveWallet(context.Context, schema.Wallet) error {
	return b.err
}

func TestStoreWriteFailureLeavesMemory(t *testing.T) {
	boom := errors.New("disk full")
	st, err := NewStore(failingBackend{Memory: store.NewMemory(), err: boom})
	require.NoError(t, err)

	err = st.Put(context.Background(), schema.Wallet{ClientID: "c", AssetID: "a", Balance: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, st.Len())
}

func TestCashBackendFailureIsPerOperation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	mem := store.NewMemory(schema.Asset{ID: "Asset1", Accuracy: 2})
	require.NoError(t, mem.SaveWallet(ctx, schema.Wallet{ClientID: "Client1", AssetID: "Asset1", Balance: decimal.NewFromInt(10)}))

	st, err := NewStore(failingBackend{Memory: mem, err: boom})
	require.NoError(t, err)
	audit := &captureEmitter{}
	cash := NewCashProcessor(asset.NewCache(mem, time.Minute), st, audit, WithDedup(idempotency.NewMemory(8)))

	op := cashOp("Client1", "Asset1", -4)
	op.ID = "op-1"
	_, err = cash.Apply(ctx, op)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, audit.records)

	w, ok, err := st.Wallet(ctx, "Client1", "Asset1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10", w.Balance.String())

	// the id was not applied, so it is not remembered
	_, err = cash.Apply(ctx, op)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, exception.ErrDuplicateOperation)
}

type downRedis struct {
	redis.UniversalClient
	err error
}

func (d downRedis) Exists(ctx context.Context, _ ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "exists")
	cmd.SetErr(d.err)
	return cmd
}

func TestCashDedupBackendErrorIsWrapped(t *testing.T) {
	down := errors.New("connection refused")
	f := newFixture(t, WithDedup(idempotency.NewRedis(downRedis{err: down}, time.Hour)))

	op := cashOp("Client1", "Asset1", 5)
	op.ID = "op-1"
	_, err := f.cash.Apply(context.Background(), op)
	require.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "check operation id")
	assert.Empty(t, f.audit.records)
	assert.Zero(t, f.store.Len())
}

func TestStoreLoadsFromBackend(t *testing.T) {
	backend := store.NewMemory()
	require.NoError(t, backend.SaveWallet(context.Background(), schema.Wallet{ClientID: "c", AssetID: "a", Balance: decimal.NewFromInt(3)}))
	st, err := NewStore(backend)
	require.NoError(t, err)

	w, ok, err := st.Wallet(context.Background(), "c", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", w.Balance.String())
	assert.Equal(t, 1, st.Len())
}

func TestStoreClientWallets(t *testing.T) {
	st, err := NewStore(store.NewMemory())
	require.NoError(t, err)
	for _, w := range []schema.Wallet{
		{ClientID: "a", AssetID: "USD"},
		{ClientID: "ab", AssetID: "BTC"},
		{ClientID: "a", AssetID: "BTC"},
		{ClientID: "b", AssetID: "USD"},
	} {
		require.NoError(t, st.Put(context.Background(), w))
	}

	got := st.ClientWallets("a")
	require.Len(t, got, 2)
	assert.Equal(t, "BTC", got[0].AssetID)
	assert.Equal(t, "USD", got[1].AssetID)
	assert.Len(t, st.Snapshot(), 4)
	assert.Empty(t, st.ClientWallets("zz"))

	_, err = NewStore(nil)
	assert.ErrorIs(t, err, exception.ErrNilBackend)
}

func TestFormatVolumeIsIdempotent(t *testing.T) {
	for _, tc := range []struct {
		in       float64
		accuracy int
		want     string
	}{
		{50, 2, "50.00"},
		{-50, 2, "-50.00"},
		{0.01, 2, "0.01"},
		{-1, 8, "-1.00000000"},
		{0.1 + 0.2, 2, "0.30"},
		{2.675, 2, "2.68"},
		{-2.675, 2, "-2.68"},
		{7, 0, "7"},
	} {
		first := FormatVolume(FromFloat(tc.in), tc.accuracy)
		assert.Equal(t, tc.want, first, "%v@%d", tc.in, tc.accuracy)

		again := FormatVolume(decimal.RequireFromString(first), tc.accuracy)
		assert.Equal(t, first, again)
	}
}
