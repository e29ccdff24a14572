package wsengine

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/eapache/queue"
)

// Hixie-75 and Hixie-76 text frames are 0x00 <utf8> 0xFF.
// The closing handshake is the 0xFF 0x00 pair.
const (
	legacyFrameStart = 0x00
	legacyFrameEnd   = 0xFF
)

var legacyCloseMarker = []byte{legacyFrameEnd, legacyFrameStart}

// EncodeLegacyFrame wraps p in the Hixie text frame delimiters.
func EncodeLegacyFrame(p []byte) []byte {
	b := make([]byte, 0, len(p)+2)
	b = append(b, legacyFrameStart)
	b = append(b, p...)
	return append(b, legacyFrameEnd)
}

// legacyEvent is one decoded legacy frame. A nil msg is the close marker.
type legacyEvent struct {
	msg *Message
}

// maxEmptyReads is how many (0, nil) reads the legacy reader tolerates
// in a row before giving up with io.ErrNoProgress.
const maxEmptyReads = 100

// legacyReader decodes Hixie frames. It reads whatever the transport
// hands it and scans the accumulated bytes; every frame a chunk completes
// is queued and handed out one per next call.
type legacyReader struct {
	r     io.Reader
	limit func() int64

	buf     []byte
	chunk   []byte
	pending *queue.Queue
	err     error

	emptyReads int
}

func newLegacyReader(r io.Reader, limit func() int64) *legacyReader {
	return &legacyReader{
		r:       r,
		limit:   limit,
		chunk:   make([]byte, 4096),
		pending: queue.New(),
	}
}

// next returns the next decoded frame, blocking on the transport
// until one is complete. Frames decoded before an error are still
// handed out first.
func (lr *legacyReader) next() (legacyEvent, error) {
	for lr.pending.Length() == 0 {
		if lr.err != nil {
			return legacyEvent{}, lr.err
		}

		n, err := lr.r.Read(lr.chunk)
		if n > 0 {
			lr.emptyReads = 0
			lr.buf = append(lr.buf, lr.chunk[:n]...)
			lr.err = lr.scan()
			continue
		}
		if err != nil {
			if err == io.EOF && len(lr.buf) > 0 {
				err = fmt.Errorf("%w: %d bytes of an unfinished legacy frame", ErrTruncatedStream, len(lr.buf))
			}
			lr.err = err
			continue
		}
		lr.emptyReads++
		if lr.emptyReads >= maxEmptyReads {
			lr.err = io.ErrNoProgress
		}
	}

	return lr.pending.Remove().(legacyEvent), nil
}

// scan moves every complete frame in buf onto the pending queue.
func (lr *legacyReader) scan() error {
	for len(lr.buf) > 0 {
		switch lr.buf[0] {
		case legacyFrameStart:
			i := bytes.IndexByte(lr.buf[1:], legacyFrameEnd)
			if i < 0 {
				if limit := lr.limit(); limit >= 0 && int64(len(lr.buf)-1) > limit {
					return fmt.Errorf("%w: read limited at %v bytes", ErrFrame, limit)
				}
				return nil
			}
			p := lr.buf[1 : 1+i]
			if limit := lr.limit(); limit >= 0 && int64(len(p)) > limit {
				return fmt.Errorf("%w: read limited at %v bytes", ErrFrame, limit)
			}
			lr.pending.Add(legacyEvent{
				msg: &Message{
					Type: MessageText,
					Data: decodeLegacyText(p),
				},
			})
			lr.buf = lr.buf[2+i:]
		case legacyFrameEnd:
			if len(lr.buf) < 2 {
				return nil
			}
			if lr.buf[1] != legacyFrameStart {
				return fmt.Errorf("%w: unsupported legacy frame type %#x", ErrFrame, lr.buf[1])
			}
			lr.pending.Add(legacyEvent{})
			lr.buf = lr.buf[2:]
		default:
			return fmt.Errorf("%w: unexpected legacy frame type %#x", ErrFrame, lr.buf[0])
		}
	}
	// Let the consumed prefix be collected.
	lr.buf = nil
	return nil
}

// decodeLegacyText copies p replacing every invalid byte with U+FFFD.
func decodeLegacyText(p []byte) []byte {
	if utf8.Valid(p) {
		return append([]byte(nil), p...)
	}

	b := make([]byte, 0, len(p)+8)
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		b = utf8.AppendRune(b, r)
		p = p[size:]
	}
	return b
}
