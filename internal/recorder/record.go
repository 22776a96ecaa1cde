package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"engine/internal/schema"
	"engine/pkg/exception"
)

// Record layout, little endian:
//
//	[0:4]   magic "JRN1"
//	[4:6]   record version
//	[6:8]   header size
//	[8]     message type
//	[9]     reserved
//	[10:12] schema version
//	[12:16] payload length
//	[16:24] session
//	[24:32] seq
//	[32:40] receive time, unix nanos
//	[40:48] trace id
//
// followed by the payload and a CRC32C over header and payload.
const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 48
	recordChecksumSize        = 4
)

const maxPayloadLen = uint64(^uint32(0))

var (
	recordMagic = [4]byte{'J', 'R', 'N', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

func encodeHeader(dst []byte, header schema.MessageHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	dst[8] = byte(header.Type)
	dst[9] = 0
	binary.LittleEndian.PutUint16(dst[10:12], header.Version)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], header.Session)
	binary.LittleEndian.PutUint64(dst[24:32], header.Seq)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(header.TsRecv))
	binary.LittleEndian.PutUint64(dst[40:48], header.TraceID)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeHeader(src []byte) (schema.MessageHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.MessageHeader{}, 0, exception.ErrJournalInvalidHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.MessageHeader{}, 0, exception.ErrJournalInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.MessageHeader{}, 0, exception.ErrJournalUnsupportedVersion
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return schema.MessageHeader{}, 0, exception.ErrJournalInvalidHeaderSize
	}
	h := schema.MessageHeader{
		Type:    schema.MessageType(src[8]),
		Version: binary.LittleEndian.Uint16(src[10:12]),
		Session: binary.LittleEndian.Uint64(src[16:24]),
		Seq:     binary.LittleEndian.Uint64(src[24:32]),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[32:40])),
		TraceID: binary.LittleEndian.Uint64(src[40:48]),
	}
	return h, binary.LittleEndian.Uint32(src[12:16]), nil
}
