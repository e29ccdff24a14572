// Package wsengine is a server side WebSocket protocol engine.
//
// It speaks three generations of the protocol over any byte stream:
// the Hixie-75 and Hixie-76 drafts and RFC 6455.
//
// See https://tools.ietf.org/html/rfc6455
//
// The engine does not know about HTTP servers. Whatever accepted the
// upgrade request passes its headers and the raw stream to Negotiate,
// then calls SendHandshake to open the connection. Package wshttp does
// this for net/http.
//
//	c, err := wsengine.Negotiate(t, req, nil)
//	if err != nil {
//		// Reply with a 400.
//	}
//	err = c.SendHandshake()
//	...
//	for msg := range c.Messages() {
//		c.Write(msg.Type, msg.Data)
//	}
//
// A Conn is driven by a single goroutine. Control frames are handled
// while reading, so the application must keep calling Read.
package wsengine
