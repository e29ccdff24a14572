// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"encoding/json"
	"io"

	"golang.org/x/xerrors"

	"nhooyr.io/wsengine"
)

// Read reads a JSON message from c into v.
// The message size is bounded by the Conn's read limit.
func Read(c *wsengine.Conn, v interface{}) error {
	err := read(c, v)
	if err != nil {
		return xerrors.Errorf("failed to read json: %w", err)
	}
	return nil
}

func read(c *wsengine.Conn, v interface{}) error {
	msg, err := c.Read()
	if err != nil {
		if xerrors.Is(err, io.EOF) && c.Err() != nil {
			return xerrors.Errorf("%w: %v", err, c.Err())
		}
		return err
	}

	if msg.Type != wsengine.MessageText {
		return xerrors.Errorf("unexpected frame type for json (expected %v): %v", wsengine.MessageText, msg.Type)
	}

	err = json.Unmarshal(msg.Data, v)
	if err != nil {
		return xerrors.Errorf("failed to decode json: %w", err)
	}

	return nil
}

// Write writes the JSON message v to c.
func Write(c *wsengine.Conn, v interface{}) error {
	err := write(c, v)
	if err != nil {
		return xerrors.Errorf("failed to write json: %w", err)
	}
	return nil
}

func write(c *wsengine.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to encode json: %w", err)
	}

	return c.Write(wsengine.MessageText, b)
}
