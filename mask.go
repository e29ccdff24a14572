package wsengine

import (
	"encoding/binary"
	"math/bits"
)

// mask applies the WebSocket masking algorithm to b
// with the given key, starting pos bytes into the key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// Masking is its own inverse so the same call unmasks.
// The returned value is the key position to continue
// masking the rest of the payload with.
//
// It xors a word at a time.
// See https://github.com/golang/go/issues/31586
func mask(key [4]byte, pos int, b []byte) int {
	end := (pos + len(b)) & 3

	key32 := binary.LittleEndian.Uint32(key[:])
	key32 = bits.RotateLeft32(key32, -8*(pos&3))

	if len(b) >= 8 {
		key64 := uint64(key32)<<32 | uint64(key32)

		for len(b) >= 32 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			v = binary.LittleEndian.Uint64(b[8:16])
			binary.LittleEndian.PutUint64(b[8:16], v^key64)
			v = binary.LittleEndian.Uint64(b[16:24])
			binary.LittleEndian.PutUint64(b[16:24], v^key64)
			v = binary.LittleEndian.Uint64(b[24:32])
			binary.LittleEndian.PutUint64(b[24:32], v^key64)
			b = b[32:]
		}

		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key32)
		b = b[4:]
	}

	// xor remaining bytes.
	for i := range b {
		b[i] ^= byte(key32)
		key32 = bits.RotateLeft32(key32, -8)
	}

	return end
}
