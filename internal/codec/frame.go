package codec

import (
	"encoding/binary"
	"io"

	"engine/internal/schema"
	"engine/pkg/exception"
)

const (
	// FrameHeaderSize is the size of the type tag plus the payload length.
	FrameHeaderSize = 5
	// MaxFramePayload bounds a single payload.
	MaxFramePayload = 1 << 20
)

// EncodeFrame appends a [type:1][length:4 LE][payload] frame to dst.
func EncodeFrame(dst []byte, t schema.MessageType, payload []byte) []byte {
	var header [FrameHeaderSize]byte
	header[0] = byte(t)
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, t schema.MessageType, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return exception.ErrFrameTooLarge
	}
	_, err := w.Write(EncodeFrame(make([]byte, 0, FrameHeaderSize+len(payload)), t, payload))
	return err
}

// ReadFrame reads one frame from r. The returned payload is freshly
// allocated and owned by the caller. io.EOF is returned only when r ends
// before the first header byte.
func ReadFrame(r io.Reader) (schema.MessageType, []byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return schema.MessageUnknown, nil, err
	}
	size := binary.LittleEndian.Uint32(header[1:5])
	if size > MaxFramePayload {
		return schema.MessageUnknown, nil, exception.ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return schema.MessageUnknown, nil, err
	}
	return schema.MessageType(header[0]), payload, nil
}
