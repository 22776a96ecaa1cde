package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"engine/internal/schema"
	"engine/pkg/exception"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	header  [recordHeaderSize]byte
	payload []byte
}

// NewReader wraps an io.Reader with journal decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:    bufio.NewReader(r),
		opts: opts,
	}
}

// Next returns the next record header and payload. It returns io.EOF at a
// clean end of input and io.ErrUnexpectedEOF for a torn last record.
// The payload is only valid until the next call to Next.
func (r *Reader) Next() (schema.MessageHeader, []byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.MessageHeader{}, nil, io.EOF
		}
		return schema.MessageHeader{}, nil, io.ErrUnexpectedEOF
	}

	header, payloadLen, err := decodeHeader(r.header[:])
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return header, nil, exception.ErrJournalPayloadTooLarge
	}

	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return header, nil, io.ErrUnexpectedEOF
	}

	var sum [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, sum[:]); err != nil {
		return header, nil, io.ErrUnexpectedEOF
	}
	if !r.opts.DisableChecksum && binary.LittleEndian.Uint32(sum[:]) != checksum(r.header[:], r.payload) {
		return header, nil, exception.ErrJournalChecksumMismatch
	}

	return header, r.payload, nil
}
