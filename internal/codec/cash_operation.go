package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"engine/internal/schema"
	"engine/pkg/exception"
)

const (
	cashOpFieldID        protowire.Number = 1
	cashOpFieldClientID  protowire.Number = 2
	cashOpFieldTimestamp protowire.Number = 3
	cashOpFieldAssetID   protowire.Number = 4
	cashOpFieldVolume    protowire.Number = 5
)

// EncodeCashInOutOperation appends the wire form of op to dst[:0].
func EncodeCashInOutOperation(dst []byte, op schema.CashInOutOperation) []byte {
	dst = dst[:0]
	dst = appendString(dst, cashOpFieldID, op.ID)
	dst = appendString(dst, cashOpFieldClientID, op.ClientID)
	dst = appendVarint(dst, cashOpFieldTimestamp, uint64(op.Timestamp))
	dst = appendString(dst, cashOpFieldAssetID, op.AssetID)
	dst = appendDouble(dst, cashOpFieldVolume, op.Volume)
	return dst
}

// DecodeCashInOutOperation parses a cash operation payload. Any decoding
// failure is reported as exception.ErrMalformedPayload.
func DecodeCashInOutOperation(src []byte) (schema.CashInOutOperation, error) {
	var op schema.CashInOutOperation
	err := walkFields(src, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case cashOpFieldID:
			return consumeString(typ, b, &op.ID)
		case cashOpFieldClientID:
			return consumeString(typ, b, &op.ClientID)
		case cashOpFieldTimestamp:
			return consumeInt64(typ, b, &op.Timestamp)
		case cashOpFieldAssetID:
			return consumeString(typ, b, &op.AssetID)
		case cashOpFieldVolume:
			return consumeDouble(typ, b, &op.Volume)
		default:
			return 0
		}
	})
	if err != nil {
		return schema.CashInOutOperation{}, err
	}
	if op.ClientID == "" || op.AssetID == "" {
		return schema.CashInOutOperation{}, fmt.Errorf("%w: cash operation without client or asset", exception.ErrMalformedPayload)
	}
	if !validAmount(op.Volume) {
		return schema.CashInOutOperation{}, fmt.Errorf("%w: cash operation volume %v", exception.ErrMalformedPayload, op.Volume)
	}
	return op, nil
}
