package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engine/internal/schema"
)

type walletRow struct {
	ClientID  string          `gorm:"primaryKey;type:varchar(64)"`
	AssetID   string          `gorm:"primaryKey;type:varchar(32)"`
	Balance   decimal.Decimal `gorm:"type:numeric;not null"`
	Reserved  decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt time.Time
}

func (walletRow) TableName() string {
	return "wallets"
}

type assetRow struct {
	ID       string `gorm:"primaryKey;type:varchar(32)"`
	Accuracy int    `gorm:"not null"`
}

func (assetRow) TableName() string {
	return "assets"
}

// Gorm is a Backend on top of a relational database.
type Gorm struct {
	db *gorm.DB
}

var _ Backend = (*Gorm)(nil)

// NewGorm wraps an opened gorm connection.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Migrate creates or updates the wallets and assets tables.
func (g *Gorm) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&walletRow{}, &assetRow{})
}

func (g *Gorm) LoadWallet(ctx context.Context, clientID, assetID string) (schema.Wallet, bool, error) {
	var row walletRow
	err := g.db.WithContext(ctx).
		Where("client_id = ? AND asset_id = ?", clientID, assetID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return schema.Wallet{}, false, nil
		}
		return schema.Wallet{}, false, err
	}
	return schema.Wallet{
		ClientID: row.ClientID,
		AssetID:  row.AssetID,
		Balance:  row.Balance,
		Reserved: row.Reserved,
	}, true, nil
}

func (g *Gorm) SaveWallet(ctx context.Context, wallet schema.Wallet) error {
	row := walletRow{
		ClientID:  wallet.ClientID,
		AssetID:   wallet.AssetID,
		Balance:   wallet.Balance,
		Reserved:  wallet.Reserved,
		UpdatedAt: time.Now().UTC(),
	}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "asset_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "reserved", "updated_at"}),
		}).
		Create(&row).Error
}

func (g *Gorm) LoadAllAssets(ctx context.Context) ([]schema.Asset, error) {
	var rows []assetRow
	if err := g.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]schema.Asset, 0, len(rows))
	for _, row := range rows {
		out = append(out, schema.Asset{ID: row.ID, Accuracy: row.Accuracy})
	}
	return out, nil
}

// SaveAsset upserts an asset definition.
func (g *Gorm) SaveAsset(ctx context.Context, asset schema.Asset) error {
	row := assetRow{ID: asset.ID, Accuracy: asset.Accuracy}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"accuracy"}),
		}).
		Create(&row).Error
}
