package wsengine

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"nhooyr.io/wsengine/internal/test/assert"
)

func TestAcceptKey(t *testing.T) {
	t.Parallel()

	// Example from https://tools.ietf.org/html/rfc6455#section-1.3
	assert.Equal(t, "accept", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestHandshakeResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		gen     Generation
		req     HandshakeRequest
		opts    *Options
		exp     string
		errIs   error
		success bool
	}{
		{
			name: "rfc6455",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
					"Sec-Websocket-Version": {"13"},
				},
			},
			exp: "HTTP/1.1 101 Switching Protocols\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
				"\r\n",
			success: true,
		},
		{
			name: "rfc6455Subprotocol",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Key":      {"dGhlIHNhbXBsZSBub25jZQ=="},
					"Sec-Websocket-Version":  {"13"},
					"Sec-Websocket-Protocol": {"chat, superchat"},
				},
			},
			opts: &Options{
				Subprotocols: []string{"superchat", "chat"},
			},
			exp: "HTTP/1.1 101 Switching Protocols\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
				"Sec-WebSocket-Protocol: superchat\r\n" +
				"\r\n",
			success: true,
		},
		{
			name: "rfc6455SelectHook",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Key":      {"dGhlIHNhbXBsZSBub25jZQ=="},
					"Sec-Websocket-Version":  {"13"},
					"Sec-Websocket-Protocol": {"chat", "superchat"},
				},
			},
			opts: &Options{
				Subprotocols: []string{"chat"},
				SelectSubprotocol: func(offered []string) string {
					return offered[len(offered)-1]
				},
			},
			exp: "HTTP/1.1 101 Switching Protocols\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
				"Sec-WebSocket-Protocol: superchat\r\n" +
				"\r\n",
			success: true,
		},
		{
			name: "rfc6455MissingVersion",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Key": {"dGhlIHNhbXBsZSBub25jZQ=="},
				},
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "rfc6455MissingKey",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Version": {"13"},
				},
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "rfc6455BadVersion",
			gen:  RFC6455,
			req: HandshakeRequest{
				Header: http.Header{
					"Sec-Websocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
					"Sec-Websocket-Version": {"8"},
				},
			},
			errIs: ErrUnsupportedVersion,
		},
		{
			name: "hixie75",
			gen:  Hixie75,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin": {"http://example.com"},
				},
				Host:     "example.com",
				Path:     "/demo",
				RawQuery: "a=b",
			},
			exp: "HTTP/1.1 101 Web Socket Protocol Handshake\r\n" +
				"Upgrade: WebSocket\r\n" +
				"Connection: Upgrade\r\n" +
				"WebSocket-Origin: http://example.com\r\n" +
				"WebSocket-Location: ws://example.com/demo?a=b\r\n" +
				"\r\n",
			success: true,
		},
		{
			name: "hixie75SecureSubprotocol",
			gen:  Hixie75,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin":                 {"https://example.com"},
					"Host":                   {"example.com:8443"},
					"Sec-Websocket-Protocol": {"sample"},
				},
				Secure: true,
			},
			opts: &Options{
				Subprotocols: []string{"sample"},
			},
			exp: "HTTP/1.1 101 Web Socket Protocol Handshake\r\n" +
				"Upgrade: WebSocket\r\n" +
				"Connection: Upgrade\r\n" +
				"WebSocket-Origin: https://example.com\r\n" +
				"WebSocket-Location: wss://example.com:8443/\r\n" +
				"WebSocket-Protocol: sample\r\n" +
				"\r\n",
			success: true,
		},
		{
			name: "hixie75MissingOrigin",
			gen:  Hixie75,
			req: HandshakeRequest{
				Host: "example.com",
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "hixie75MissingHost",
			gen:  Hixie75,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin": {"http://example.com"},
				},
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "hixie75BadHost",
			gen:  Hixie75,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin": {"http://example.com"},
				},
				Host: "exa mple.com",
			},
			errIs: ErrMalformedHandshake,
		},
		{
			// Example from draft-hixie-thewebsocketprotocol-76 section 1.3.
			name: "hixie76",
			gen:  Hixie76,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin":                 {"http://example.com"},
					"Sec-Websocket-Key1":     {"4 @1  46546xW%0l 1 5"},
					"Sec-Websocket-Key2":     {"12998 5 Y3 1  .P00"},
					"Sec-Websocket-Protocol": {"sample"},
				},
				Host: "example.com",
				Path: "/demo",
				Key3: []byte("^n:ds[4U"),
			},
			opts: &Options{
				Subprotocols: []string{"sample"},
			},
			exp: "HTTP/1.1 101 WebSocket Protocol Handshake\r\n" +
				"Upgrade: WebSocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Origin: http://example.com\r\n" +
				"Sec-WebSocket-Protocol: sample\r\n" +
				"Sec-WebSocket-Location: ws://example.com/demo\r\n" +
				"\r\n" +
				"8jKS'y:G*Co,Wxa-",
			success: true,
		},
		{
			name: "hixie76NoSpaces",
			gen:  Hixie76,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin":             {"http://example.com"},
					"Sec-Websocket-Key1": {"12345"},
					"Sec-Websocket-Key2": {"1 2"},
				},
				Host: "example.com",
				Key3: make([]byte, 8),
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "hixie76Overflow",
			gen:  Hixie76,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin":             {"http://example.com"},
					"Sec-Websocket-Key1": {"99999999999 9"},
					"Sec-Websocket-Key2": {"1 2"},
				},
				Host: "example.com",
				Key3: make([]byte, 8),
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name: "hixie76ShortKey3",
			gen:  Hixie76,
			req: HandshakeRequest{
				Header: http.Header{
					"Origin":             {"http://example.com"},
					"Sec-Websocket-Key1": {"1 2"},
					"Sec-Websocket-Key2": {"1 2"},
				},
				Host: "example.com",
				Key3: make([]byte, 7),
			},
			errIs: ErrMalformedHandshake,
		},
		{
			name:  "unknownGeneration",
			gen:   Generation(42),
			errIs: ErrUnsupportedVersion,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, err := HandshakeResponse(tc.gen, &tc.req, tc.opts)
			if !tc.success {
				assert.ErrorIs(t, tc.errIs, err)
				return
			}
			assert.Success(t, err)
			assert.Equal(t, "response", tc.exp, string(resp))
		})
	}
}

func Test_hixie76Key(t *testing.T) {
	t.Parallel()

	n, err := hixie76Key("Sec-WebSocket-Key1", "1 2 3 4")
	assert.Success(t, err)
	assert.Equal(t, "key", uint32(411), n)

	_, err = hixie76Key("Sec-WebSocket-Key1", "")
	var mhe *MissingHeaderError
	if !errors.As(err, &mhe) {
		t.Fatalf("expected MissingHeaderError but got %v", err)
	}
	assert.Equal(t, "header", "Sec-WebSocket-Key1", mhe.Header)

	_, err = hixie76Key("Sec-WebSocket-Key2", "   ")
	assert.ErrorIs(t, ErrMalformedHandshake, err)
	assert.Contains(t, err, "needs digits")
}

func Test_offeredSubprotocols(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Add("Sec-WebSocket-Protocol", "a, b")
	h.Add("Sec-WebSocket-Protocol", " c ,,")

	assert.Equal(t, "offered", []string{"a", "b", "c"}, offeredSubprotocols(h))

	called := false
	sp := selectSubprotocol(http.Header{}, &Options{
		SelectSubprotocol: func(offered []string) string {
			called = true
			return "x"
		},
	})
	assert.Equal(t, "subprotocol", "", sp)
	assert.Equal(t, "hook called", false, called)

	sp = selectSubprotocol(h, &Options{
		Subprotocols: []string{"z", strings.ToUpper("b")},
	})
	assert.Equal(t, "subprotocol", "B", sp)
}
