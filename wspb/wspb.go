// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"io"

	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"nhooyr.io/wsengine"
)

// Read reads a protobuf message from c into v.
// The message size is bounded by the Conn's read limit.
func Read(c *wsengine.Conn, v proto.Message) error {
	err := read(c, v)
	if err != nil {
		return xerrors.Errorf("failed to read protobuf: %w", err)
	}
	return nil
}

func read(c *wsengine.Conn, v proto.Message) error {
	msg, err := c.Read()
	if err != nil {
		if xerrors.Is(err, io.EOF) && c.Err() != nil {
			return xerrors.Errorf("%w: %v", err, c.Err())
		}
		return err
	}

	if msg.Type != wsengine.MessageBinary {
		return xerrors.Errorf("unexpected frame type for protobuf (expected %v): %v", wsengine.MessageBinary, msg.Type)
	}

	err = proto.Unmarshal(msg.Data, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}

	return nil
}

// Write writes the protobuf message v to c.
// Only RFC 6455 connections carry binary messages.
func Write(c *wsengine.Conn, v proto.Message) error {
	err := write(c, v)
	if err != nil {
		return xerrors.Errorf("failed to write protobuf: %w", err)
	}
	return nil
}

func write(c *wsengine.Conn, v proto.Message) error {
	b, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	return c.Write(wsengine.MessageBinary, b)
}
