package ledger

import "github.com/shopspring/decimal"

// Round rounds v to accuracy fractional digits, half away from zero.
func Round(v decimal.Decimal, accuracy int) decimal.Decimal {
	return v.Round(int32(accuracy))
}

// FormatVolume renders v with exactly accuracy fractional digits.
func FormatVolume(v decimal.Decimal, accuracy int) string {
	return Round(v, accuracy).StringFixed(int32(accuracy))
}

// FromFloat converts a wire amount using its shortest decimal representation,
// so 0.01 becomes exactly 0.01.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
