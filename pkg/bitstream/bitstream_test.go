package bitstream

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameLen = 40

func testFrame(seed byte) []byte {
	codes := make([]byte, frameLen)
	for i := range codes {
		codes[i] = seed + byte(i*7)
	}
	return codes
}

func TestSoftbitLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, G192, frameLen)
	codes := testFrame(0)
	codes[0] = 0xA5
	require.NoError(t, w.Write(Frame{Codes: codes}))
	require.NoError(t, w.Flush())

	words := make([]uint16, buf.Len()/2)
	require.NoError(t, binary.Read(bytes.NewReader(buf.Bytes()), binary.LittleEndian, words))
	require.Len(t, words, 2+8*frameLen)

	assert.Equal(t, SyncGood, words[0])
	assert.Equal(t, uint16(320), words[1])
	// 0xA5 = 10100101
	assert.Equal(t, []uint16{BitOne, BitZero, BitOne, BitZero, BitZero, BitOne, BitZero, BitOne}, words[2:10])
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{G192, Hardbit} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, format, frameLen)
			want := []Frame{{Codes: testFrame(1)}, {Codes: testFrame(2)}, {Codes: testFrame(3)}}
			if format == G192 {
				want = append(want, Frame{Lost: true}, Frame{Codes: testFrame(4)})
			}
			for _, f := range want {
				require.NoError(t, w.Write(f))
			}
			require.NoError(t, w.Flush())

			r := NewReader(&buf, format, frameLen)
			for i, f := range want {
				got, err := r.Next()
				require.NoError(t, err, "frame %d", i)
				assert.Equal(t, f, got, "frame %d", i)
			}
			_, err := r.Next()
			assert.Equal(t, io.EOF, err)
			assert.Equal(t, len(want), r.Frames())
		})
	}
}

func TestEmptyPayloadIsLost(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{SyncGood, 0}))

	f, err := NewReader(&buf, G192, frameLen).Next()
	require.NoError(t, err)
	assert.True(t, f.Lost)
	assert.Nil(t, f.Codes)
}

func TestReaderErrors(t *testing.T) {
	t.Run("bad sync", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{0x1234, 320}))
		_, err := NewReader(&buf, G192, frameLen).Next()
		assert.ErrorIs(t, err, ErrBadSyncWord)
	})

	t.Run("oversized frame", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{SyncGood, 640}))
		_, err := NewReader(&buf, G192, frameLen).Next()
		assert.ErrorIs(t, err, ErrFrameLength)
	})

	t.Run("truncated softbit", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{SyncGood, 320, BitOne}))
		_, err := NewReader(&buf, G192, frameLen).Next()
		assert.ErrorIs(t, err, ErrShortFrame)
	})

	t.Run("truncated header only", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{SyncGood, 320}))
		_, err := NewReader(&buf, G192, frameLen).Next()
		assert.ErrorIs(t, err, ErrShortFrame)
	})

	t.Run("truncated hardbit", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(make([]byte, 10)), Hardbit, frameLen).Next()
		assert.ErrorIs(t, err, ErrShortFrame)
	})
}

func TestWriterErrors(t *testing.T) {
	w := NewWriter(io.Discard, Hardbit, frameLen)
	assert.ErrorIs(t, w.Write(Frame{Lost: true}), ErrLossNotEncodable)
	assert.ErrorIs(t, w.Write(Frame{Codes: make([]byte, 3)}), ErrFrameLength)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("G192")
	require.NoError(t, err)
	assert.Equal(t, G192, f)

	f, err = ParseFormat("hardbit")
	require.NoError(t, err)
	assert.Equal(t, Hardbit, f)

	_, err = ParseFormat("wav")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
