package wsengine

import (
	"context"
	"fmt"
	"io"

	"cdr.dev/slog"
	"github.com/google/uuid"

	"nhooyr.io/wsengine/internal/errd"
)

// defaultReadLimit is the largest message a Conn accepts unless
// SetReadLimit is called.
const defaultReadLimit = 32768

// Transport is the raw byte stream a Conn speaks over.
//
// A Conn owns its Transport exclusively. Closing it must unblock a
// pending Read, which then reports the end of the stream.
type Transport interface {
	io.ReadWriteCloser
}

// Options configures negotiation and the resulting Conn.
type Options struct {
	// Subprotocols lists the subprotocols the server supports in order of
	// preference. The first one the client offers is selected.
	Subprotocols []string

	// SelectSubprotocol overrides Subprotocols. It is called with the
	// subprotocols the client offered, in order, and returns the one to
	// use or "" for none. It is not called when the client offers none.
	SelectSubprotocol func(offered []string) string

	// MaskFrames masks outbound RFC 6455 frames.
	// Servers leave it unset.
	MaskFrames bool

	// ReadLimit is the maximum message size in bytes.
	// Defaults to 32768. Use SetReadLimit to change it on an open Conn.
	ReadLimit int64

	// Logger receives the connection's logs.
	// The zero value discards them.
	Logger slog.Logger
}

// State is where a Conn is in its lifecycle.
// A Conn only moves forward through the states.
type State int

//go:generate stringer -type=State -trimprefix=State

// State constants.
const (
	// StateHandshaking is the state between Negotiate and SendHandshake.
	StateHandshaking State = iota
	// StateOpen means messages flow both ways.
	StateOpen
	// StateLocalClosing means Close is sending the close frame.
	StateLocalClosing
	// StateRemoteClosed means the peer's close frame has been received.
	StateRemoteClosed
	// StateClosed means the transport has been torn down.
	StateClosed
)

// Conn is a server side WebSocket connection over a Transport.
//
// A Conn is not safe for concurrent use. Every method, including Read,
// must be called from the goroutine driving the connection.
//
// Read is pull based: control frames are only handled while the
// application is reading, so always read until io.EOF.
type Conn struct {
	t           Transport
	gen         Generation
	subprotocol string
	response    []byte
	maskFrames  bool
	readLimit   int64

	logger slog.Logger

	state State
	err   error

	// wroteClose is set once a close frame or marker has been written.
	wroteClose bool
	// writing is set while a message Writer is open.
	writing bool

	// RFC 6455 read state.
	readHeaderBuf [maxHeaderSize]byte
	fragments     []byte
	fragmentType  MessageType
	fragmenting   bool

	// Hixie read state.
	legacy *legacyReader
}

// Negotiate prepares a server connection for the upgrade request req.
//
// It selects the protocol generation from the headers and computes the
// handshake response. For Hixie-76 requests whose Key3 is nil the 8 key
// bytes that follow the request headers are read from t first.
//
// The returned Conn is in StateHandshaking. Call SendHandshake to open it.
// On error nothing has been written to t and t is left open so the
// caller can reply with an HTTP error.
func Negotiate(t Transport, req *HandshakeRequest, opts *Options) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to negotiate WebSocket connection")

	if opts == nil {
		opts = &Options{}
	}
	if req == nil {
		return nil, fmt.Errorf("%w: no upgrade request", ErrMalformedHandshake)
	}

	gen, err := SelectGeneration(req.Header)
	if err != nil {
		return nil, err
	}

	if gen == Hixie76 && req.Key3 == nil {
		key3 := make([]byte, 8)
		_, err = io.ReadFull(t, key3)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read Hixie-76 key bytes: %v", ErrMalformedHandshake, err)
		}
		req.Key3 = key3
	}

	resp, err := HandshakeResponse(gen, req, opts)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		t:           t,
		gen:         gen,
		subprotocol: selectSubprotocol(req.Header, opts),
		response:    resp,
		maskFrames:  opts.MaskFrames,
		readLimit:   opts.ReadLimit,
		state:       StateHandshaking,
	}
	if c.readLimit <= 0 {
		c.readLimit = defaultReadLimit
	}
	c.logger = opts.Logger.With(
		slog.F("conn", uuid.New().String()),
		slog.F("generation", gen.String()),
	)
	if gen.legacy() {
		c.legacy = newLegacyReader(t, func() int64 {
			return c.readLimit
		})
	}

	c.logger.Debug(context.Background(), "negotiated handshake",
		slog.F("subprotocol", c.subprotocol),
	)
	return c, nil
}

// SendHandshake writes the handshake response and opens the connection.
// It may only be called once.
func (c *Conn) SendHandshake() (err error) {
	defer errd.Wrap(&err, "failed to send handshake")

	if c.state != StateHandshaking {
		return fmt.Errorf("handshake already sent, connection is %v", c.state)
	}

	_, err = c.t.Write(c.response)
	if err != nil {
		c.abort(err)
		return err
	}

	c.setState(StateOpen)
	return nil
}

// HandshakeResponse returns the bytes SendHandshake writes.
func (c *Conn) HandshakeResponse() []byte {
	return c.response
}

// Generation returns the negotiated protocol generation.
func (c *Conn) Generation() Generation {
	return c.gen
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// State returns the current state of the connection.
func (c *Conn) State() State {
	return c.state
}

// Err reports why the connection ended.
//
// It is a CloseError when the peer closed the connection and the
// abort cause otherwise. It is nil while the connection is open and
// after a clean local Close.
func (c *Conn) Err() error {
	return c.err
}

// SetReadLimit sets the maximum size in bytes of a message read from the
// peer. Larger messages abort the connection.
func (c *Conn) SetReadLimit(n int64) {
	c.readLimit = n
}

// Abort closes the transport immediately without a close handshake.
// It is safe to call in any state.
func (c *Conn) Abort() {
	c.abort(fmt.Errorf("connection aborted: %w", CloseError{
		Code: StatusAbnormalClosure,
	}))
}

func (c *Conn) abort(err error) {
	if c.state == StateClosed {
		return
	}
	if c.err == nil {
		c.err = err
	}
	c.logger.Warn(context.Background(), "aborting connection",
		slog.F("state", c.state.String()),
		slog.Error(err),
	)
	c.teardown()
}

// teardown closes the transport and ends the connection.
func (c *Conn) teardown() {
	c.setState(StateClosed)
	c.fragments = nil
	err := c.t.Close()
	if err != nil {
		c.logger.Debug(context.Background(), "failed to close transport", slog.Error(err))
	}
}

func (c *Conn) setState(s State) {
	if s == c.state {
		return
	}
	c.logger.Debug(context.Background(), "state transition",
		slog.F("from", c.state.String()),
		slog.F("to", s.String()),
	)
	c.state = s
}
