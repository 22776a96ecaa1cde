package codec

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"engine/internal/schema"
	"engine/pkg/exception"
)

func TestCashInOutOperationEncodeDecodeRoundTrip(t *testing.T) {
	orig := schema.CashInOutOperation{
		ID:        "6a1f0a3e-business",
		ClientID:  "Client1",
		AssetID:   "Asset1",
		Volume:    -50.25,
		Timestamp: 1700000000123,
	}

	decoded, err := DecodeCashInOutOperation(EncodeCashInOutOperation(nil, orig))
	if err != nil {
		t.Fatalf("decode cash operation: %v", err)
	}
	if decoded != orig {
		t.Fatalf("cash operation round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestBalanceUpdateEncodeDecodeRoundTrip(t *testing.T) {
	orig := schema.BalanceUpdate{UID: 123, ClientID: "Client1", AssetID: "Asset1", Amount: 29.99}

	decoded, err := DecodeBalanceUpdate(EncodeBalanceUpdate(nil, orig))
	if err != nil {
		t.Fatalf("decode balance update: %v", err)
	}
	if decoded != orig {
		t.Fatalf("balance update round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestDecodeCashInOutOperationSkipsUnknownFields(t *testing.T) {
	payload := EncodeCashInOutOperation(nil, schema.CashInOutOperation{ClientID: "Client1", AssetID: "Asset1", Volume: 1})
	payload = protowire.AppendTag(payload, 99, protowire.BytesType)
	payload = protowire.AppendString(payload, "future field")

	op, err := DecodeCashInOutOperation(payload)
	if err != nil {
		t.Fatalf("decode with unknown field: %v", err)
	}
	if op.ClientID != "Client1" || op.Volume != 1 {
		t.Fatalf("unexpected operation: %+v", op)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	valid := EncodeCashInOutOperation(nil, schema.CashInOutOperation{ID: "id", ClientID: "Client1", AssetID: "Asset1", Volume: 10})

	cases := map[string][]byte{
		"truncated":      valid[:len(valid)-3],
		"garbage":        {0xff, 0xff, 0xff},
		"missing client": EncodeCashInOutOperation(nil, schema.CashInOutOperation{AssetID: "Asset1", Volume: 1}),
		"nan volume":     EncodeCashInOutOperation(nil, schema.CashInOutOperation{ClientID: "c", AssetID: "a", Volume: math.NaN()}),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeCashInOutOperation(payload); !errors.Is(err, exception.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}

	if _, err := DecodeBalanceUpdate(EncodeBalanceUpdate(nil, schema.BalanceUpdate{ClientID: "c"})); !errors.Is(err, exception.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for balance update without asset, got %v", err)
	}
}

func TestFrameWriteRead(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x01, 0x02, 0x03}
	if err := WriteFrame(&buf, schema.MessageBalanceUpdate, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := WriteFrame(&buf, schema.MessagePing, nil); err != nil {
		t.Fatalf("write ping frame: %v", err)
	}

	typ, got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != schema.MessageBalanceUpdate || !bytes.Equal(got, payload) {
		t.Fatalf("frame mismatch: type=%s payload=%x", typ, got)
	}

	typ, got, err = ReadFrame(&buf)
	if err != nil || typ != schema.MessagePing || len(got) != 0 {
		t.Fatalf("ping frame mismatch: type=%s payload=%x err=%v", typ, got, err)
	}

	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	frame := EncodeFrame(nil, schema.MessageCashInOutOperation, []byte("payload"))
	if _, _, err := ReadFrame(bytes.NewReader(frame[:len(frame)-2])); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	header := []byte{byte(schema.MessageCashInOutOperation), 0xff, 0xff, 0xff, 0x7f}
	if _, _, err := ReadFrame(bytes.NewReader(header)); err != exception.ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
