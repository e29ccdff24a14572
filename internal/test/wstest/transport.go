// Package wstest provides in memory transports for driving a connection
// from tests.
package wstest

import (
	"bytes"
	"errors"
	"io"
)

// ErrClosed is returned by Transport once Close has been called.
var ErrClosed = errors.New("wstest: transport closed")

// Transport is a scripted transport.
//
// Each Read returns bytes from at most one of the scripted chunks so
// tests control exactly how the peer's bytes arrive. Once the script is
// exhausted Read returns io.EOF, like a peer that hung up.
// Everything written is recorded.
type Transport struct {
	chunks [][]byte

	// Writes holds a copy of every Write call in order.
	Writes [][]byte
	// Closes counts calls to Close.
	Closes int
	// WriteErr, if set, is returned by every Write.
	WriteErr error
}

// NewTransport returns a Transport that yields chunks to readers.
func NewTransport(chunks ...[]byte) *Transport {
	return &Transport{
		chunks: chunks,
	}
}

// Feed appends more chunks to the script.
func (t *Transport) Feed(chunks ...[]byte) {
	t.chunks = append(t.chunks, chunks...)
}

func (t *Transport) Read(p []byte) (int, error) {
	if t.Closes > 0 {
		return 0, ErrClosed
	}
	for len(t.chunks) > 0 && len(t.chunks[0]) == 0 {
		t.chunks = t.chunks[1:]
	}
	if len(t.chunks) == 0 {
		return 0, io.EOF
	}

	n := copy(p, t.chunks[0])
	t.chunks[0] = t.chunks[0][n:]
	return n, nil
}

func (t *Transport) Write(p []byte) (int, error) {
	if t.Closes > 0 {
		return 0, ErrClosed
	}
	if t.WriteErr != nil {
		return 0, t.WriteErr
	}
	t.Writes = append(t.Writes, append([]byte(nil), p...))
	return len(p), nil
}

// Close marks the transport closed. Further reads and writes fail.
func (t *Transport) Close() error {
	t.Closes++
	return nil
}

// Written returns every byte written so far.
func (t *Transport) Written() []byte {
	return bytes.Join(t.Writes, nil)
}
