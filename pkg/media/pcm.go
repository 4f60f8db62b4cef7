package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"g711enhance/pkg/g711"
)

// SamplesToPCM serializes samples as 16-bit little-endian PCM.
func SamplesToPCM(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// PCMToSamples parses 16-bit little-endian PCM. A trailing odd byte is
// ignored.
func PCMToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

// DecodePayload expands G.711 codes to PCM without any enhancement.
func DecodePayload(payload []byte, law g711.Law) []byte {
	if len(payload) == 0 {
		return nil
	}
	out := make([]byte, 2*len(payload))
	for i, c := range payload {
		s, _, _ := law.Decode(c)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// FrameReader reads 16-bit PCM in whole codec frames. A short last frame
// is zero-padded.
type FrameReader struct {
	r   io.Reader
	buf [2 * g711.FrameLen]byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Next returns the next frame, or io.EOF when no samples are left.
func (f *FrameReader) Next() ([g711.FrameLen]int16, error) {
	var frame [g711.FrameLen]int16
	n, err := io.ReadFull(f.r, f.buf[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return frame, err
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return frame, fmt.Errorf("read PCM: %w", err)
	}
	clear(f.buf[n:])
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(f.buf[2*i:]))
	}
	return frame, nil
}
