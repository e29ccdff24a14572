package wsengine

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"nhooyr.io/wsengine/internal/errd"
)

// Frame is a single RFC 6455 frame.
// Payload is always the unmasked application data, masking only exists
// on the wire.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type header struct {
	fin    bool
	rsv1   bool
	rsv2   bool
	rsv3   bool
	opcode Opcode

	// payloadLength is signed because the RFC forbids the most
	// significant bit of the 64 bit length.
	payloadLength int64

	masked  bool
	maskKey [4]byte
}

// First byte consists of FIN, RSV1, RSV2, RSV3 and the Opcode.
// Second byte is the mask flag and the payload length.
// Next 8 bytes are the extended payload length.
// Next 4 bytes are the mask key.
const maxHeaderSize = 1 + 1 + 8 + 4

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5
const maxControlPayload = 125

// appendTo appends the wire form of h to b.
func (h header) appendTo(b []byte) ([]byte, error) {
	var b0 byte
	if h.fin {
		b0 |= 1 << 7
	}
	if h.rsv1 {
		b0 |= 1 << 6
	}
	if h.rsv2 {
		b0 |= 1 << 5
	}
	if h.rsv3 {
		b0 |= 1 << 4
	}

	// Opcode can only be max 4 bits.
	if h.opcode < 0 || h.opcode > 1<<4-1 {
		return nil, fmt.Errorf("opcode not allowed to be greater than 0x0f: %#x", int(h.opcode))
	}
	b0 |= byte(h.opcode)

	var b1 byte
	if h.masked {
		b1 |= 1 << 7
	}

	switch {
	case h.payloadLength < 0:
		return nil, fmt.Errorf("%w: length is not permitted to be negative: %#x", ErrPayloadTooLarge, h.payloadLength)
	case h.payloadLength <= maxControlPayload:
		b = append(b, b0, b1|byte(h.payloadLength))
	case h.payloadLength <= math.MaxUint16:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.payloadLength))
	default:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.payloadLength))
	}

	if h.masked {
		b = append(b, h.maskKey[:]...)
	}

	return b, nil
}

// readHeader reads a header from r without reading past it.
// b is scratch space of at least maxHeaderSize bytes.
//
// io.EOF is returned untouched if r ends before the first byte,
// any later short read is ErrTruncatedStream.
// See https://tools.ietf.org/html/rfc6455#section-5.2
func readHeader(r io.Reader, b []byte) (_ header, err error) {
	defer errd.Wrap(&err, "failed to read frame header")

	_, err = io.ReadFull(r, b[:2])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, truncated(err)
		}
		return header{}, err
	}

	var h header
	h.fin = b[0]&(1<<7) != 0
	h.rsv1 = b[0]&(1<<6) != 0
	h.rsv2 = b[0]&(1<<5) != 0
	h.rsv3 = b[0]&(1<<4) != 0
	h.opcode = Opcode(b[0] & 0xf)

	h.masked = b[1]&(1<<7) != 0

	extra := 0
	payloadLength := b[1] &^ (1 << 7)
	switch payloadLength {
	case 126:
		extra += 2
	case 127:
		extra += 8
	}
	if h.masked {
		extra += 4
	}

	_, err = io.ReadFull(r, b[:extra])
	if err != nil {
		return header{}, truncated(err)
	}

	switch payloadLength {
	case 126:
		h.payloadLength = int64(binary.BigEndian.Uint16(b))
		b = b[2:]
	case 127:
		h.payloadLength = int64(binary.BigEndian.Uint64(b))
		if h.payloadLength < 0 {
			return header{}, fmt.Errorf("%w: payload length has the most significant bit set: %#x", ErrFrame, uint64(h.payloadLength))
		}
		b = b[8:]
	default:
		h.payloadLength = int64(payloadLength)
	}

	if h.masked {
		copy(h.maskKey[:], b)
	}

	return h, nil
}

// validate enforces the framing rules a reader must check.
// limit bounds data frame payloads, limit < 0 disables the check.
func (h header) validate(limit int64) error {
	if h.rsv1 || h.rsv2 || h.rsv3 {
		return fmt.Errorf("%w: received header with unexpected rsv bits set: %v:%v:%v", ErrFrame, h.rsv1, h.rsv2, h.rsv3)
	}
	if !h.opcode.valid() {
		return fmt.Errorf("%w: received unknown opcode %v", ErrFrame, h.opcode)
	}
	if h.opcode.controlOp() {
		if !h.fin {
			return fmt.Errorf("%w: received fragmented control frame", ErrFrame)
		}
		if h.payloadLength > maxControlPayload {
			return fmt.Errorf("%w: received control frame payload with invalid length: %d", ErrFrame, h.payloadLength)
		}
	}
	if limit >= 0 && !h.opcode.controlOp() && h.payloadLength > limit {
		return fmt.Errorf("%w: read limited at %v bytes", ErrFrame, limit)
	}
	return nil
}

// ReadFrame reads exactly one frame from r and unmasks its payload.
//
// r is never read past the end of the frame. If r ends before the
// frame begins, io.EOF is returned. If it ends part way through,
// the error wraps ErrTruncatedStream. Protocol violations wrap ErrFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	var b [maxHeaderSize]byte
	return readFrame(r, b[:], -1)
}

func readFrame(r io.Reader, scratch []byte, limit int64) (Frame, error) {
	h, err := readHeader(r, scratch)
	if err != nil {
		return Frame{}, err
	}

	err = h.validate(limit)
	if err != nil {
		return Frame{}, err
	}

	p, err := readPayload(r, h.payloadLength)
	if err != nil {
		return Frame{}, err
	}

	if h.masked {
		mask(h.maskKey, 0, p)
	}

	return Frame{
		Fin:     h.fin,
		Opcode:  h.opcode,
		Masked:  h.masked,
		MaskKey: h.maskKey,
		Payload: p,
	}, nil
}

// readPayload reads n bytes. Large payloads are buffered as they
// arrive rather than allocated up front from an untrusted length.
func readPayload(r io.Reader, n int64) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to read frame payload")

	if n <= 1<<16 {
		p := make([]byte, n)
		_, err = io.ReadFull(r, p)
		if err != nil {
			return nil, truncated(err)
		}
		return p, nil
	}

	var buf bytes.Buffer
	_, err = io.CopyN(&buf, r, n)
	if err != nil {
		return nil, truncated(err)
	}
	return buf.Bytes(), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncatedStream, err)
	}
	return err
}

// EncodeFrame returns the wire form of a single frame.
//
// When masked is set a random mask key is generated and the payload is
// masked with it; p itself is left untouched.
func EncodeFrame(fin bool, op Opcode, p []byte, masked bool) ([]byte, error) {
	return appendFrame(make([]byte, 0, maxHeaderSize+len(p)), fin, op, p, masked)
}

func appendFrame(b []byte, fin bool, op Opcode, p []byte, masked bool) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to encode %v frame", op)

	if !op.valid() {
		return nil, fmt.Errorf("%w: unknown opcode %v", ErrFrame, op)
	}
	if uint64(len(p)) >= 1<<63 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, uint64(len(p)))
	}

	h := header{
		fin:           fin,
		opcode:        op,
		payloadLength: int64(len(p)),
		masked:        masked,
	}
	if h.masked {
		h.maskKey, err = newMaskKey()
		if err != nil {
			return nil, err
		}
	}

	b, err = h.appendTo(b)
	if err != nil {
		return nil, err
	}

	start := len(b)
	b = append(b, p...)
	if h.masked {
		mask(h.maskKey, 0, b[start:])
	}
	return b, nil
}

func newMaskKey() (k [4]byte, err error) {
	_, err = io.ReadFull(rand.Reader, k[:])
	if err != nil {
		return k, fmt.Errorf("failed to generate masking key: %w", err)
	}
	return k, nil
}
