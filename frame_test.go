package wsengine

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"testing"

	"github.com/gobwas/ws"

	"nhooyr.io/wsengine/internal/test/assert"
	"nhooyr.io/wsengine/internal/test/xrand"
)

func TestHeader(t *testing.T) {
	t.Parallel()

	t.Run("lengths", func(t *testing.T) {
		t.Parallel()

		lengths := []int{
			124,
			125,
			126,
			127,

			65534,
			65535,
			65536,
			65537,
		}

		for _, n := range lengths {
			n := n
			t.Run(strconv.Itoa(n), func(t *testing.T) {
				t.Parallel()

				testHeader(t, header{
					payloadLength: int64(n),
				})
			})
		}
	})

	t.Run("fuzz", func(t *testing.T) {
		t.Parallel()

		for i := 0; i < 10000; i++ {
			h := header{
				fin:    xrand.Bool(),
				rsv1:   xrand.Bool(),
				rsv2:   xrand.Bool(),
				rsv3:   xrand.Bool(),
				opcode: Opcode(xrand.Int(16)),

				masked:        xrand.Bool(),
				payloadLength: int64(xrand.Int(math.MaxInt64)),
			}
			if h.masked {
				h.maskKey = xrand.MaskKey()
			}

			testHeader(t, h)
		}
	})
}

func testHeader(t *testing.T, h header) {
	b, err := h.appendTo(nil)
	assert.Success(t, err)

	r := bytes.NewReader(b)
	h2, err := readHeader(r, make([]byte, maxHeaderSize))
	assert.Success(t, err)

	assert.Equal(t, "read header", h, h2)
	assert.Equal(t, "unread bytes", 0, r.Len())
}

func TestEncodeFrame(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		length     int
		headerSize int
	}{
		{0, 2},
		{125, 2},
		{126, 4},
		{65535, 4},
		{65536, 10},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(strconv.Itoa(tc.length), func(t *testing.T) {
			t.Parallel()

			p := xrand.Bytes(tc.length)
			b, err := EncodeFrame(true, OpBinary, p, false)
			assert.Success(t, err)
			assert.Equal(t, "frame size", tc.headerSize+tc.length, len(b))
			assert.Equal(t, "first byte", byte(0x82), b[0])
			assert.Equal(t, "payload", p, b[tc.headerSize:])

			b, err = EncodeFrame(true, OpBinary, p, true)
			assert.Success(t, err)
			assert.Equal(t, "masked frame size", tc.headerSize+4+tc.length, len(b))
			assert.Equal(t, "mask bit", byte(0x80), b[1]&0x80)

			f, err := ReadFrame(bytes.NewReader(b))
			assert.Success(t, err)
			assert.Equal(t, "payload", p, f.Payload)
			assert.Equal(t, "masked", true, f.Masked)
		})
	}

	t.Run("hello", func(t *testing.T) {
		t.Parallel()

		// Example from https://tools.ietf.org/html/rfc6455#section-5.7
		b, err := EncodeFrame(true, OpText, []byte("Hello"), false)
		assert.Success(t, err)
		assert.Equal(t, "frame", []byte{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f}, b)
	})

	t.Run("unmodifiedPayload", func(t *testing.T) {
		t.Parallel()

		p := []byte("Hello")
		_, err := EncodeFrame(true, OpText, p, true)
		assert.Success(t, err)
		assert.Equal(t, "payload", []byte("Hello"), p)
	})

	t.Run("badOpcode", func(t *testing.T) {
		t.Parallel()

		_, err := EncodeFrame(true, Opcode(3), nil, false)
		assert.ErrorIs(t, ErrFrame, err)
	})
}

func TestReadFrame(t *testing.T) {
	t.Parallel()

	t.Run("eof", func(t *testing.T) {
		t.Parallel()

		_, err := ReadFrame(bytes.NewReader(nil))
		assert.ErrorIs(t, io.EOF, err)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		b, err := EncodeFrame(true, OpText, []byte("hello world"), true)
		assert.Success(t, err)

		for i := 1; i < len(b); i++ {
			_, err = ReadFrame(bytes.NewReader(b[:i]))
			assert.ErrorIs(t, ErrTruncatedStream, err)
		}
	})

	t.Run("noReadAhead", func(t *testing.T) {
		t.Parallel()

		b1, err := EncodeFrame(true, OpText, []byte("one"), false)
		assert.Success(t, err)
		b2, err := EncodeFrame(true, OpBinary, []byte("two"), true)
		assert.Success(t, err)

		r := bytes.NewReader(append(b1, b2...))
		f, err := ReadFrame(r)
		assert.Success(t, err)
		assert.Equal(t, "unread bytes", len(b2), r.Len())
		assert.Equal(t, "payload", "one", string(f.Payload))

		f, err = ReadFrame(r)
		assert.Success(t, err)
		assert.Equal(t, "payload", "two", string(f.Payload))
		assert.Equal(t, "opcode", OpBinary, f.Opcode)
	})

	errCases := []struct {
		name string
		b    []byte
	}{
		{"rsv1", []byte{0xc1, 0x00}},
		{"rsv3", []byte{0x91, 0x00}},
		{"reservedOpcode", []byte{0x83, 0x00}},
		{"reservedControlOpcode", []byte{0x8b, 0x00}},
		{"fragmentedPing", []byte{0x09, 0x00}},
		{"longPing", append([]byte{0x89, 0x7e, 0x00, 0x7e}, make([]byte, 126)...)},
		{"msbLength", []byte{0x82, 0x7f, 0x80, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tc := range errCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ReadFrame(bytes.NewReader(tc.b))
			assert.ErrorIs(t, ErrFrame, err)
		})
	}

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		b, err := EncodeFrame(true, OpText, []byte("hello"), false)
		assert.Success(t, err)

		_, err = readFrame(bytes.NewReader(b), make([]byte, maxHeaderSize), 4)
		assert.ErrorIs(t, ErrFrame, err)

		_, err = readFrame(bytes.NewReader(b), make([]byte, maxHeaderSize), 5)
		assert.Success(t, err)
	})
}

func TestFrameGobwas(t *testing.T) {
	t.Parallel()

	t.Run("encode", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int{0, 5, 125, 126, 65535, 65536} {
			p := xrand.Bytes(n)
			masked := xrand.Bool()

			b, err := EncodeFrame(true, OpBinary, p, masked)
			assert.Success(t, err)

			f, err := ws.ReadFrame(bytes.NewReader(b))
			assert.Success(t, err)
			if f.Header.Masked {
				f = ws.UnmaskFrameInPlace(f)
			}
			assert.Equal(t, "opcode", ws.OpBinary, f.Header.OpCode)
			assert.Equal(t, "fin", true, f.Header.Fin)
			assert.Equal(t, "masked", masked, f.Header.Masked)
			assert.Equal(t, "payload", p, f.Payload)
		}
	})

	t.Run("decode", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int{0, 5, 125, 126, 65535, 65536} {
			p := xrand.Bytes(n)

			f := ws.NewFrame(ws.OpText, false, append([]byte(nil), p...))
			if xrand.Bool() {
				f = ws.MaskFrameInPlace(f)
			}

			var buf bytes.Buffer
			err := ws.WriteFrame(&buf, f)
			assert.Success(t, err)

			got, err := ReadFrame(&buf)
			assert.Success(t, err)
			assert.Equal(t, "opcode", OpText, got.Opcode)
			assert.Equal(t, "fin", false, got.Fin)
			assert.Equal(t, "masked", f.Header.Masked, got.Masked)
			assert.Equal(t, "payload", p, got.Payload)
		}
	})
}

func BenchmarkEncodeFrame(b *testing.B) {
	for _, size := range []int{16, 512, 4096, 16384} {
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			p := xrand.Bytes(size)
			b.SetBytes(int64(size))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				EncodeFrame(true, OpBinary, p, true)
			}
		})
	}
}
