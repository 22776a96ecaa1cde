package schema

import "github.com/shopspring/decimal"

// Asset describes a ledger asset. Accuracy is the number of fractional digits
// every amount of the asset is rounded and displayed to.
type Asset struct {
	ID       string `json:"id"`
	Accuracy int    `json:"accuracy"`
}

// Wallet is the balance record of one client for one asset.
type Wallet struct {
	ClientID string          `json:"clientId"`
	AssetID  string          `json:"assetId"`
	Balance  decimal.Decimal `json:"balance"`
	Reserved decimal.Decimal `json:"reserved"`
}

// Available returns the part of the balance that is not reserved.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}
