package schema

import "fmt"

// SchemaVersion is the current message schema version.
const SchemaVersion uint16 = 1

// MessageType is the one-byte tag carried by every inbound message.
type MessageType uint8

const (
	MessageUnknown MessageType = iota
	MessagePing
	MessageCashInOutOperation
	MessageBalanceUpdate
	MessageLimitOrder
	MessageMarketOrder
)

// MaxMessageType is the highest known message tag.
const MaxMessageType = MessageMarketOrder

func (t MessageType) String() string {
	switch t {
	case MessagePing:
		return "Ping"
	case MessageCashInOutOperation:
		return "CashInOutOperation"
	case MessageBalanceUpdate:
		return "BalanceUpdate"
	case MessageLimitOrder:
		return "LimitOrder"
	case MessageMarketOrder:
		return "MarketOrder"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MessageHeader is the common metadata attached to every inbound message.
// Seq is assigned by the dispatcher when the message is dequeued.
type MessageHeader struct {
	Type    MessageType
	Version uint16
	Session uint64
	Seq     uint64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(messageType MessageType, session uint64, tsRecv int64) MessageHeader {
	return MessageHeader{
		Type:    messageType,
		Version: SchemaVersion,
		Session: session,
		TsRecv:  tsRecv,
	}
}
