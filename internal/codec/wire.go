package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"engine/pkg/exception"
)

// fieldFunc consumes the value of a known field and returns the number of
// bytes read, a negative protowire error code, or 0 to skip the field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func walkFields(src []byte, fn fieldFunc) error {
	for len(src) > 0 {
		num, typ, n := protowire.ConsumeTag(src)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		src = src[n:]

		m := fn(num, typ, src)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, src)
		}
		if m < 0 {
			return malformed(protowire.ParseError(m))
		}
		src = src[m:]
	}
	return nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", exception.ErrMalformedPayload, err)
}

func appendString(dst []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendString(dst, v)
}

func appendVarint(dst []byte, num protowire.Number, v uint64) []byte {
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, v)
}

func appendDouble(dst []byte, num protowire.Number, v float64) []byte {
	dst = protowire.AppendTag(dst, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(dst, math.Float64bits(v))
}

func consumeString(typ protowire.Type, b []byte, out *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*out = v
	}
	return n
}

func consumeInt64(typ protowire.Type, b []byte, out *int64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*out = int64(v)
	}
	return n
}

func consumeDouble(typ protowire.Type, b []byte, out *float64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}
	v, n := protowire.ConsumeFixed64(b)
	if n >= 0 {
		*out = math.Float64frombits(v)
	}
	return n
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
