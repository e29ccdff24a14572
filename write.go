package wsengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"cdr.dev/slog"

	"nhooyr.io/wsengine/internal/bpool"
	"nhooyr.io/wsengine/internal/errd"
)

// Write sends p as a single unfragmented message of type typ.
//
// Before SendHandshake it returns ErrNotOpen. Once the connection is
// closing or closed the message is dropped and nil is returned. Neither
// case touches the transport. Hixie connections only carry valid UTF-8
// text. A transport error aborts the connection and is returned.
func (c *Conn) Write(typ MessageType, p []byte) (err error) {
	defer errd.Wrap(&err, "failed to write msg")

	if c.dropped() {
		return nil
	}
	err = c.writable()
	if err != nil {
		return err
	}
	err = c.checkMessageType(typ)
	if err != nil {
		return err
	}
	if c.writing {
		return errors.New("cannot write a message while a Writer is open")
	}

	if c.gen.legacy() {
		return c.writeLegacy(p)
	}
	return c.writeFrame(true, Opcode(typ), p)
}

// Writer returns a writer that streams a message of type typ to the peer.
// The writer must be closed before the next message is written.
//
// On RFC 6455 connections every Write is sent as one frame of a
// fragmented message and Close sends the final frame. Hixie connections
// have no fragmentation so the message is buffered until Close.
// Control frames may still be sent while the writer is open.
func (c *Conn) Writer(typ MessageType) (_ io.WriteCloser, err error) {
	defer errd.Wrap(&err, "failed to get writer")

	err = c.writable()
	if err != nil {
		return nil, err
	}
	err = c.checkMessageType(typ)
	if err != nil {
		return nil, err
	}
	if c.writing {
		return nil, errors.New("previous message writer was not closed")
	}

	c.writing = true
	return &messageWriter{
		c:      c,
		opcode: Opcode(typ),
	}, nil
}

type messageWriter struct {
	c      *Conn
	opcode Opcode
	closed bool

	// Buffered message for Hixie connections.
	buf []byte
}

// Write sends p as the next fragment of the message.
func (mw *messageWriter) Write(p []byte) (_ int, err error) {
	defer errd.Wrap(&err, "failed to write")

	if mw.closed {
		return 0, errors.New("cannot use closed writer")
	}
	err = mw.c.writable()
	if err != nil {
		return 0, err
	}

	if mw.c.gen.legacy() {
		mw.buf = append(mw.buf, p...)
		return len(p), nil
	}
	if len(p) == 0 {
		return 0, nil
	}

	err = mw.c.writeFrame(false, mw.opcode, p)
	if err != nil {
		return 0, fmt.Errorf("failed to write data frame: %w", err)
	}
	mw.opcode = OpContinuation
	return len(p), nil
}

// Close finishes the message.
// It must be called for every writer.
func (mw *messageWriter) Close() (err error) {
	defer errd.Wrap(&err, "failed to close writer")

	if mw.closed {
		return errors.New("cannot use closed writer")
	}
	mw.closed = true
	mw.c.writing = false

	err = mw.c.writable()
	if err != nil {
		return err
	}

	if mw.c.gen.legacy() {
		return mw.c.writeLegacy(mw.buf)
	}
	return mw.c.writeFrame(true, mw.opcode, nil)
}

func (c *Conn) checkMessageType(typ MessageType) error {
	switch typ {
	case MessageText:
		return nil
	case MessageBinary:
		if c.gen.legacy() {
			return fmt.Errorf("%v connections cannot send %v messages", c.gen, typ)
		}
		return nil
	default:
		return fmt.Errorf("unknown message type %v", typ)
	}
}

func (c *Conn) writeLegacy(p []byte) error {
	if !utf8.Valid(p) {
		return errors.New("text message is not valid UTF-8")
	}
	return c.write(EncodeLegacyFrame(p))
}

// Ping sends a ping frame with payload p. The pong is consumed by Read.
// Only RFC 6455 connections support pings. Like Write it does nothing
// once the connection is closing or closed.
func (c *Conn) Ping(p []byte) (err error) {
	defer errd.Wrap(&err, "failed to ping")

	if c.dropped() {
		return nil
	}
	err = c.writable()
	if err != nil {
		return err
	}
	if c.gen.legacy() {
		return fmt.Errorf("%v connections do not support pings", c.gen)
	}
	if len(p) > maxControlPayload {
		return fmt.Errorf("%w: ping payload is %d bytes, max is %d", ErrPayloadTooLarge, len(p), maxControlPayload)
	}
	return c.writeFrame(true, OpPing, p)
}

// dropped reports whether sends are silently discarded because the
// connection is closing or closed.
func (c *Conn) dropped() bool {
	switch c.state {
	case StateHandshaking, StateOpen:
		return false
	}
	c.logger.Debug(context.Background(), "dropped write on closed connection",
		slog.F("state", c.state.String()),
	)
	return true
}

func (c *Conn) writable() error {
	switch c.state {
	case StateHandshaking:
		return ErrNotOpen
	case StateOpen:
		return nil
	default:
		return ErrClosed
	}
}

// writeFrame writes one frame with a single transport write.
func (c *Conn) writeFrame(fin bool, op Opcode, p []byte) error {
	buf := bpool.Get()
	defer bpool.Put(buf)

	buf.Grow(maxHeaderSize + len(p))
	b, err := appendFrame(buf.AvailableBuffer(), fin, op, p, c.maskFrames)
	if err != nil {
		return err
	}

	err = c.write(b)
	if err != nil {
		return err
	}
	if op == OpClose {
		c.wroteClose = true
	}
	return nil
}

// write hands b to the transport, aborting the connection on failure.
func (c *Conn) write(b []byte) error {
	_, err := c.t.Write(b)
	if err != nil {
		err = fmt.Errorf("failed to write to transport: %w", err)
		c.abort(err)
		return err
	}
	return nil
}
