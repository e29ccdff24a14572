// Package wshttp upgrades net/http requests to WebSocket connections.
package wshttp

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/xerrors"

	"nhooyr.io/wsengine"
)

// Options configures Upgrade.
type Options struct {
	wsengine.Options

	// InsecureSkipVerify disables Upgrade's origin verification
	// behaviour. By default Upgrade only allows the handshake to
	// succeed if the javascript that is initiating the handshake
	// is on the same domain as the server. This is to prevent CSRF
	// when secure data is stored in cookies.
	//
	// See https://stackoverflow.com/a/37837709/4283659
	InsecureSkipVerify bool
}

// IsWebSocket reports whether r asks to be upgraded to a WebSocket.
func IsWebSocket(r *http.Request) bool {
	return headerValuesContainsToken(r.Header, "Connection", "Upgrade") &&
		headerValuesContainsToken(r.Header, "Upgrade", "WebSocket")
}

// Upgrade hijacks the connection behind w and completes the WebSocket
// handshake for any of the supported protocol generations.
//
// If the request is not a valid upgrade request a 400 is written and an
// error returned; nothing is hijacked in that case.
// The returned Conn is open and owns the hijacked connection.
//
// The hijacked connection is closed once r's context is done, which
// ends a pending Read. The handler must be done with the Conn before
// it returns.
func Upgrade(w http.ResponseWriter, r *http.Request, opts *Options) (*wsengine.Conn, error) {
	if opts == nil {
		opts = &Options{}
	}

	err := verifyClientRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}

	if !opts.InsecureSkipVerify {
		err = authenticateOrigin(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return nil, err
		}
	}

	req := handshakeRequest(r)
	err = precheck(req, &opts.Options)
	if err != nil {
		err = xerrors.Errorf("websocket: %w", err)
		if xerrors.Is(err, wsengine.ErrUnsupportedVersion) {
			w.Header().Set("Sec-WebSocket-Version", "13")
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = xerrors.New("websocket: response writer does not implement http.Hijacker")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, err
	}

	netConn, brw, err := hj.Hijack()
	if err != nil {
		err = xerrors.Errorf("websocket: failed to hijack connection: %w", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, err
	}

	t := &hijacked{
		Conn: netConn,
		br:   brw.Reader,
		stop: context.AfterFunc(r.Context(), func() {
			netConn.Close()
		}),
	}

	c, err := wsengine.Negotiate(t, req, &opts.Options)
	if err != nil {
		t.Close()
		return nil, xerrors.Errorf("websocket: %w", err)
	}

	err = c.SendHandshake()
	if err != nil {
		return nil, xerrors.Errorf("websocket: %w", err)
	}

	return c, nil
}

func verifyClientRequest(r *http.Request) error {
	if !headerValuesContainsToken(r.Header, "Connection", "Upgrade") {
		return xerrors.Errorf("websocket: protocol violation: Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
	}

	if !headerValuesContainsToken(r.Header, "Upgrade", "WebSocket") {
		return xerrors.Errorf("websocket: protocol violation: Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
	}

	if r.Method != "GET" {
		return xerrors.Errorf("websocket: protocol violation: handshake request method %q is not GET", r.Method)
	}

	return nil
}

func handshakeRequest(r *http.Request) *wsengine.HandshakeRequest {
	return &wsengine.HandshakeRequest{
		Header:   r.Header,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Secure:   r.TLS != nil,
	}
}

// precheck validates the request before anything is hijacked.
// Hixie-76 key bytes are only available after the hijack so a
// placeholder stands in for them.
func precheck(req *wsengine.HandshakeRequest, opts *wsengine.Options) error {
	gen, err := wsengine.SelectGeneration(req.Header)
	if err != nil {
		return err
	}

	check := *req
	if gen == wsengine.Hixie76 {
		check.Key3 = make([]byte, 8)
	}
	_, err = wsengine.HandshakeResponse(gen, &check, opts)
	return err
}

func headerValuesContainsToken(h http.Header, key, val string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], val)
}

func authenticateOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return xerrors.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	return xerrors.Errorf("request Origin %q is not authorized for Host %q", origin, r.Host)
}

// hijacked reads through the server's buffered reader so bytes it
// already consumed past the request headers are not lost.
type hijacked struct {
	net.Conn
	br *bufio.Reader

	// stop unregisters the close on request context cancellation.
	stop func() bool
}

func (h *hijacked) Read(p []byte) (int, error) {
	return h.br.Read(p)
}

func (h *hijacked) Close() error {
	h.stop()
	return h.Conn.Close()
}
