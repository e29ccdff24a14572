package wsengine

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHandshake is returned when the upgrade request lacks a
	// required header or carries one that cannot be used. The request is not
	// a valid WebSocket handshake and must be rejected.
	ErrMalformedHandshake = errors.New("websocket: malformed handshake")

	// ErrUnsupportedVersion is returned for a protocol version this package
	// does not implement.
	ErrUnsupportedVersion = errors.New("websocket: unsupported protocol version")

	// ErrFrame is the protocol violation error: unknown opcodes, reserved
	// bits, bad lengths, oversized messages and broken fragmentation.
	ErrFrame = errors.New("websocket: invalid frame")

	// ErrTruncatedStream is returned when the peer goes away in the middle of a frame.
	ErrTruncatedStream = errors.New("websocket: truncated stream")

	// ErrPayloadTooLarge is returned when a payload cannot be length encoded.
	ErrPayloadTooLarge = errors.New("websocket: payload too large")

	// ErrClosed is returned by Writer, and by an open message writer, once
	// the connection is closing or closed. No I/O is attempted.
	// Write and Ping drop their payload silently instead.
	ErrClosed = errors.New("websocket: connection closed")

	// ErrNotOpen is returned when writing before SendHandshake.
	ErrNotOpen = errors.New("websocket: handshake not sent")
)

// MissingHeaderError reports a required handshake header that was absent.
// It matches ErrMalformedHandshake with errors.Is.
type MissingHeaderError struct {
	Header string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("websocket: malformed handshake: missing %v header", e.Header)
}

// Is reports whether target is ErrMalformedHandshake.
func (e *MissingHeaderError) Is(target error) bool {
	return target == ErrMalformedHandshake
}

func missingHeader(h string) error {
	return &MissingHeaderError{Header: h}
}
