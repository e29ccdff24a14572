package wsengine

import (
	"fmt"
	"net/http"
	"strings"
)

// Generation is the WebSocket protocol generation a connection speaks.
// It is chosen once from the upgrade request and never changes.
type Generation int

// Generation constants.
const (
	// Hixie75 is draft-hixie-thewebsocketprotocol-75.
	Hixie75 Generation = iota + 1
	// Hixie76 is draft-hixie-thewebsocketprotocol-76, also known as hybi-00.
	Hixie76
	// RFC6455 is the standard protocol, Sec-WebSocket-Version 13.
	RFC6455
)

func (g Generation) String() string {
	switch g {
	case Hixie75:
		return "hixie-75"
	case Hixie76:
		return "hixie-76"
	case RFC6455:
		return "rfc6455"
	}
	return fmt.Sprintf("Generation(%d)", int(g))
}

// legacy reports whether g uses the 0x00/0xFF framing.
func (g Generation) legacy() bool {
	return g == Hixie75 || g == Hixie76
}

// rfc6455Version is the only Sec-WebSocket-Version this package speaks.
const rfc6455Version = "13"

// SelectGeneration picks the protocol generation from the upgrade
// request headers.
//
// Sec-WebSocket-Key1 selects Hixie76 and then requires Sec-WebSocket-Key2.
// Sec-WebSocket-Key selects RFC6455; a Sec-WebSocket-Version other than 13
// fails with ErrUnsupportedVersion. Anything else is Hixie75.
func SelectGeneration(h http.Header) (Generation, error) {
	if h.Get("Sec-WebSocket-Key1") != "" {
		if h.Get("Sec-WebSocket-Key2") == "" {
			return 0, missingHeader("Sec-WebSocket-Key2")
		}
		return Hixie76, nil
	}

	if h.Get("Sec-WebSocket-Key") != "" {
		v := strings.TrimSpace(h.Get("Sec-WebSocket-Version"))
		if v != "" && v != rfc6455Version {
			return 0, fmt.Errorf("%w: Sec-WebSocket-Version %q (only %v is supported)", ErrUnsupportedVersion, v, rfc6455Version)
		}
		return RFC6455, nil
	}

	return Hixie75, nil
}

// ParseGeneration maps a version tag such as "75", "76" or "13" to its
// Generation. The names returned by Generation.String are accepted too.
func ParseGeneration(tag string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "75", "hixie-75":
		return Hixie75, nil
	case "76", "hixie-76", "hybi-00":
		return Hixie76, nil
	case rfc6455Version, "rfc6455":
		return RFC6455, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, tag)
}
