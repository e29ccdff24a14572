package wsengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"cdr.dev/slog"
)

// Read returns the next message from the peer.
//
// Pings are answered and pongs dropped without being returned. When the
// peer closes the connection the close is echoed, the transport is torn
// down and io.EOF is returned. Any protocol or transport error aborts the
// connection and also returns io.EOF; Err reports the cause. Once the
// stream has ended every call returns io.EOF immediately.
func (c *Conn) Read() (Message, error) {
	switch c.state {
	case StateHandshaking:
		return Message{}, ErrNotOpen
	case StateOpen:
	default:
		return Message{}, io.EOF
	}

	if c.gen.legacy() {
		return c.readLegacy()
	}
	return c.readRFC6455()
}

// Messages returns an iterator over the messages read from the peer.
// It stops at the end of the stream, see Read.
func (c *Conn) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			msg, err := c.Read()
			if err != nil {
				return
			}
			if !yield(msg) {
				return
			}
		}
	}
}

func (c *Conn) readRFC6455() (Message, error) {
	for {
		f, err := readFrame(c.t, c.readHeaderBuf[:], c.remainingReadLimit())
		if err != nil {
			if errors.Is(err, io.EOF) && !errors.Is(err, ErrTruncatedStream) {
				err = fmt.Errorf("peer hung up without a close frame: %w", err)
			}
			c.abort(err)
			return Message{}, io.EOF
		}

		switch f.Opcode {
		case OpPing:
			err = c.writeFrame(true, OpPong, f.Payload)
			if err != nil {
				return Message{}, io.EOF
			}
		case OpPong:
		case OpClose:
			c.handleClose(f.Payload)
			return Message{}, io.EOF
		case OpContinuation:
			if !c.fragmenting {
				c.abort(fmt.Errorf("%w: received continuation frame without text or binary frame", ErrFrame))
				return Message{}, io.EOF
			}
			c.fragments = append(c.fragments, f.Payload...)
			if f.Fin {
				return c.finishFragments(), nil
			}
		case OpText, OpBinary:
			if c.fragmenting {
				c.abort(fmt.Errorf("%w: received new data frame before previous message was finished", ErrFrame))
				return Message{}, io.EOF
			}
			typ := MessageType(f.Opcode)
			if f.Fin {
				return Message{
					Type: typ,
					Data: f.Payload,
				}, nil
			}
			c.fragmenting = true
			c.fragmentType = typ
			c.fragments = append(c.fragments[:0], f.Payload...)
		}
	}
}

// remainingReadLimit is how large the next data frame may be.
func (c *Conn) remainingReadLimit() int64 {
	if c.readLimit < 0 {
		return -1
	}
	if !c.fragmenting {
		return c.readLimit
	}
	return max(c.readLimit-int64(len(c.fragments)), 0)
}

func (c *Conn) finishFragments() Message {
	msg := Message{
		Type: c.fragmentType,
		Data: c.fragments,
	}
	c.fragments = nil
	c.fragmenting = false
	return msg
}

// handleClose answers the peer's close frame and tears the connection down.
func (c *Conn) handleClose(p []byte) {
	c.setState(StateRemoteClosed)

	ce, err := parseClosePayload(p)
	if err != nil {
		c.err = fmt.Errorf("%w: received invalid close payload: %v", ErrFrame, err)
		ce = CloseError{
			Code: StatusProtocolError,
		}
	} else {
		c.err = fmt.Errorf("received close frame: %w", ce)
	}
	c.logger.Debug(context.Background(), "peer closed connection", slog.F("close", ce))

	if !c.wroteClose {
		var echo []byte
		if ce.Code != StatusNoStatusRcvd {
			echo, _ = ce.bytes()
		}
		err = c.writeFrame(true, OpClose, echo)
		if err != nil {
			return
		}
	}
	c.teardown()
}

func (c *Conn) readLegacy() (Message, error) {
	ev, err := c.legacy.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("peer hung up without a close marker: %w", err)
		}
		c.abort(err)
		return Message{}, io.EOF
	}

	if ev.msg != nil {
		return *ev.msg, nil
	}

	c.setState(StateRemoteClosed)
	c.err = fmt.Errorf("received close marker: %w", CloseError{
		Code: StatusNoStatusRcvd,
	})
	if !c.wroteClose {
		err = c.write(legacyCloseMarker)
		if err != nil {
			return Message{}, io.EOF
		}
		c.wroteClose = true
	}
	c.teardown()
	return Message{}, io.EOF
}
