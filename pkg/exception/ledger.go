package exception

import "errors"

// Ledger errors
var (
	ErrMalformedPayload   = errors.New("ledger: malformed payload")
	ErrAssetNotFound      = errors.New("ledger: asset not found")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrDuplicateOperation = errors.New("ledger: duplicate operation")
	ErrNilBackend         = errors.New("ledger: nil backend")
)
