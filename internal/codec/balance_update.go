package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"engine/internal/schema"
	"engine/pkg/exception"
)

const (
	balanceUpdateFieldUID      protowire.Number = 1
	balanceUpdateFieldClientID protowire.Number = 2
	balanceUpdateFieldAssetID  protowire.Number = 3
	balanceUpdateFieldAmount   protowire.Number = 4
)

// EncodeBalanceUpdate appends the wire form of update to dst[:0].
func EncodeBalanceUpdate(dst []byte, update schema.BalanceUpdate) []byte {
	dst = dst[:0]
	dst = appendVarint(dst, balanceUpdateFieldUID, uint64(update.UID))
	dst = appendString(dst, balanceUpdateFieldClientID, update.ClientID)
	dst = appendString(dst, balanceUpdateFieldAssetID, update.AssetID)
	dst = appendDouble(dst, balanceUpdateFieldAmount, update.Amount)
	return dst
}

// DecodeBalanceUpdate parses a balance update payload.
func DecodeBalanceUpdate(src []byte) (schema.BalanceUpdate, error) {
	var update schema.BalanceUpdate
	err := walkFields(src, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case balanceUpdateFieldUID:
			return consumeInt64(typ, b, &update.UID)
		case balanceUpdateFieldClientID:
			return consumeString(typ, b, &update.ClientID)
		case balanceUpdateFieldAssetID:
			return consumeString(typ, b, &update.AssetID)
		case balanceUpdateFieldAmount:
			return consumeDouble(typ, b, &update.Amount)
		default:
			return 0
		}
	})
	if err != nil {
		return schema.BalanceUpdate{}, err
	}
	if update.ClientID == "" || update.AssetID == "" {
		return schema.BalanceUpdate{}, fmt.Errorf("%w: balance update without client or asset", exception.ErrMalformedPayload)
	}
	if !validAmount(update.Amount) {
		return schema.BalanceUpdate{}, fmt.Errorf("%w: balance update amount %v", exception.ErrMalformedPayload, update.Amount)
	}
	return update, nil
}
