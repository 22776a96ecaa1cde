package schema

import "time"

// CashInOutOperation is the payload of MessageCashInOutOperation.
// A positive volume credits the wallet, a negative one debits it.
type CashInOutOperation struct {
	ID        string
	ClientID  string
	AssetID   string
	Volume    float64
	Timestamp int64 // unix millis
}

// BalanceUpdate is the payload of MessageBalanceUpdate. Amount replaces the
// wallet balance as is.
type BalanceUpdate struct {
	UID      int64
	ClientID string
	AssetID  string
	Amount   float64
}

// CashOperation is the audit record emitted for every applied cash operation.
// Volume is formatted with exactly the asset accuracy fractional digits.
type CashOperation struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId,omitempty"`
	ClientID   string    `json:"clientId"`
	Asset      string    `json:"asset"`
	Volume     string    `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
}
