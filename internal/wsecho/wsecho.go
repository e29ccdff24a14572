// Package wsecho echoes messages back to the peer.
package wsecho

import (
	"context"

	"golang.org/x/time/rate"

	"nhooyr.io/wsengine"
)

// Loop echos every msg received from c until the peer closes the
// connection or an error occurs.
// The read limit is set to 1 << 30.
//
// A nil limiter echoes as fast as messages arrive. ctx only bounds the
// wait for the limiter, a Read in progress is not interrupted.
func Loop(ctx context.Context, c *wsengine.Conn, l *rate.Limiter) error {
	defer c.Close(wsengine.StatusInternalError, "")

	c.SetReadLimit(1 << 30)

	for msg := range c.Messages() {
		if l != nil {
			err := l.Wait(ctx)
			if err != nil {
				c.Close(wsengine.StatusTryAgainLater, "echo rate limit wait failed")
				return err
			}
		}

		err := c.Write(msg.Type, msg.Data)
		if err != nil {
			return err
		}
	}

	switch wsengine.CloseStatus(c.Err()) {
	case wsengine.StatusNormalClosure, wsengine.StatusGoingAway, wsengine.StatusNoStatusRcvd:
		return nil
	}
	return c.Err()
}
