package wsengine

import (
	"context"

	"cdr.dev/slog"

	"nhooyr.io/wsengine/internal/errd"
)

// Close sends a close frame with the given code and reason and tears the
// transport down without waiting for the peer's reply.
//
// Hixie connections send the close marker and ignore code and reason.
// StatusNoStatusRcvd sends a close frame with an empty payload. If code
// and reason cannot be sent, a StatusInternalError close frame is sent
// instead and the marshal error is returned.
//
// Closing an already closed connection is a no-op. Closing a connection
// that never sent its handshake only closes the transport.
func (c *Conn) Close(code StatusCode, reason string) (err error) {
	defer errd.Wrap(&err, "failed to close WebSocket")

	switch c.state {
	case StateHandshaking:
		c.teardown()
		return nil
	case StateOpen:
	default:
		return nil
	}

	c.setState(StateLocalClosing)
	defer func() {
		if c.state != StateClosed {
			c.teardown()
		}
	}()

	if c.gen.legacy() {
		err = c.write(legacyCloseMarker)
		if err != nil {
			return err
		}
		c.wroteClose = true
		return nil
	}

	var p []byte
	var marshalErr error
	if code != StatusNoStatusRcvd {
		p, marshalErr = CloseError{
			Code:   code,
			Reason: reason,
		}.bytes()
		if marshalErr != nil {
			c.logger.Error(context.Background(), "sending internal error close frame instead", slog.Error(marshalErr))
		}
	}

	err = c.writeFrame(true, OpClose, p)
	if err != nil {
		return err
	}
	return marshalErr
}
