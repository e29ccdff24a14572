package wsengine

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"nhooyr.io/wsengine/internal/errd"
)

// HandshakeRequest is what the engine needs to know about an upgrade request.
// The HTTP layer that received the request fills it in.
type HandshakeRequest struct {
	// Header holds the request headers.
	Header http.Header
	// Host is the requested host. The Host header is used when empty.
	Host string
	// Path and RawQuery rebuild the URL for the Hixie Location headers.
	Path     string
	RawQuery string
	// Secure selects wss:// in the Hixie Location headers.
	Secure bool
	// Key3 holds the 8 bytes that follow a Hixie-76 request's headers.
	// Negotiate reads them from the transport when nil.
	Key3 []byte
}

// keyGUID is appended to Sec-WebSocket-Key before hashing.
// See https://tools.ietf.org/html/rfc6455#section-1.3
var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// AcceptKey computes the Sec-WebSocket-Accept value for key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write(keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// HandshakeResponse returns the exact bytes to write back to the client to
// accept the upgrade request for the given generation.
//
// Errors wrap ErrMalformedHandshake and mean the request must be rejected.
func HandshakeResponse(gen Generation, req *HandshakeRequest, opts *Options) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to negotiate %v handshake", gen)

	if opts == nil {
		opts = &Options{}
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}

	switch gen {
	case Hixie75:
		return hixie75Response(req, opts)
	case Hixie76:
		return hixie76Response(req, opts)
	case RFC6455:
		return rfc6455Response(req, opts)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, gen)
}

func rfc6455Response(req *HandshakeRequest, opts *Options) ([]byte, error) {
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, missingHeader("Sec-WebSocket-Key")
	}
	version := req.Header.Get("Sec-WebSocket-Version")
	if version == "" {
		return nil, missingHeader("Sec-WebSocket-Version")
	}
	if strings.TrimSpace(version) != rfc6455Version {
		return nil, fmt.Errorf("%w: Sec-WebSocket-Version %q (only %v is supported)", ErrUnsupportedVersion, version, rfc6455Version)
	}

	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n")
	if subproto := selectSubprotocol(req.Header, opts); subproto != "" {
		b.WriteString("Sec-WebSocket-Protocol: " + subproto + "\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes(), nil
}

func hixie75Response(req *HandshakeRequest, opts *Options) ([]byte, error) {
	origin, location, err := legacyOriginLocation(req)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Web Socket Protocol Handshake\r\n")
	b.WriteString("Upgrade: WebSocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("WebSocket-Origin: " + origin + "\r\n")
	b.WriteString("WebSocket-Location: " + location + "\r\n")
	if subproto := selectSubprotocol(req.Header, opts); subproto != "" {
		b.WriteString("WebSocket-Protocol: " + subproto + "\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes(), nil
}

func hixie76Response(req *HandshakeRequest, opts *Options) ([]byte, error) {
	origin, location, err := legacyOriginLocation(req)
	if err != nil {
		return nil, err
	}

	challenge, err := hixie76Challenge(req.Header.Get("Sec-WebSocket-Key1"), req.Header.Get("Sec-WebSocket-Key2"), req.Key3)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 WebSocket Protocol Handshake\r\n")
	b.WriteString("Upgrade: WebSocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Origin: " + origin + "\r\n")
	if subproto := selectSubprotocol(req.Header, opts); subproto != "" {
		b.WriteString("Sec-WebSocket-Protocol: " + subproto + "\r\n")
	}
	b.WriteString("Sec-WebSocket-Location: " + location + "\r\n")
	b.WriteString("\r\n")
	b.Write(challenge[:])
	return b.Bytes(), nil
}

// hixie76Challenge computes MD5(be32(key1) ++ be32(key2) ++ key3).
func hixie76Challenge(key1, key2 string, key3 []byte) ([md5.Size]byte, error) {
	if len(key3) != 8 {
		return [md5.Size]byte{}, fmt.Errorf("%w: expected 8 key bytes after the headers but got %d", ErrMalformedHandshake, len(key3))
	}

	n1, err := hixie76Key("Sec-WebSocket-Key1", key1)
	if err != nil {
		return [md5.Size]byte{}, err
	}
	n2, err := hixie76Key("Sec-WebSocket-Key2", key2)
	if err != nil {
		return [md5.Size]byte{}, err
	}

	b := make([]byte, 0, 16)
	b = binary.BigEndian.AppendUint32(b, n1)
	b = binary.BigEndian.AppendUint32(b, n2)
	b = append(b, key3...)
	return md5.Sum(b), nil
}

// hixie76Key divides the digits of key by its number of spaces,
// keeping the integer quotient.
func hixie76Key(name, key string) (uint32, error) {
	if key == "" {
		return 0, missingHeader(name)
	}

	var digits strings.Builder
	spaces := uint64(0)
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ':
			spaces++
		}
	}
	if digits.Len() == 0 || spaces == 0 {
		return 0, fmt.Errorf("%w: %v %q needs digits and spaces", ErrMalformedHandshake, name, key)
	}

	n, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v %q: %v", ErrMalformedHandshake, name, key, err)
	}
	n /= spaces
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %v %q does not fit in 32 bits", ErrMalformedHandshake, name, key)
	}
	return uint32(n), nil
}

// legacyOriginLocation returns the Origin to echo and the URL the
// client connected to.
func legacyOriginLocation(req *HandshakeRequest) (origin, location string, err error) {
	origin = req.Header.Get("Origin")
	if origin == "" {
		return "", "", missingHeader("Origin")
	}

	host := req.Host
	if host == "" {
		host = req.Header.Get("Host")
	}
	if host == "" {
		return "", "", missingHeader("Host")
	}
	if !httpguts.ValidHostHeader(host) {
		return "", "", fmt.Errorf("%w: invalid host %q", ErrMalformedHandshake, host)
	}

	path := req.Path
	if path == "" {
		path = "/"
	}

	scheme := "ws://"
	if req.Secure {
		scheme = "wss://"
	}
	location = scheme + host + path
	if req.RawQuery != "" {
		location += "?" + req.RawQuery
	}
	return origin, location, nil
}

// offeredSubprotocols lists the subprotocols the client asked for in order.
func offeredSubprotocols(h http.Header) []string {
	var offered []string
	for _, v := range h.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				offered = append(offered, p)
			}
		}
	}
	return offered
}

func selectSubprotocol(h http.Header, opts *Options) string {
	if opts.SelectSubprotocol != nil {
		offered := offeredSubprotocols(h)
		if len(offered) == 0 {
			return ""
		}
		return opts.SelectSubprotocol(offered)
	}

	for _, sp := range opts.Subprotocols {
		if httpguts.HeaderValuesContainsToken(h.Values("Sec-WebSocket-Protocol"), sp) {
			return sp
		}
	}
	return ""
}
