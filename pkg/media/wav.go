package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// WAVWriter writes 16-bit PCM into a RIFF/WAVE container. The header is
// written up front with zero sizes and patched on Close.
type WAVWriter struct {
	w          io.WriteSeeker
	dataSize   uint32
	sampleRate int
	channels   int
	closed     bool
}

func NewWAVWriter(w io.WriteSeeker, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channels", sampleRate, channels)
	}
	var header [wavHeaderSize]byte
	writeWAVHeader(header[:], 0, sampleRate, channels)
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	return &WAVWriter{w: w, sampleRate: sampleRate, channels: channels}, nil
}

// Write appends little-endian PCM bytes.
func (w *WAVWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed WAV writer")
	}
	n, err := w.w.Write(p)
	w.dataSize += uint32(n)
	return n, err
}

func (w *WAVWriter) WriteSamples(samples []int16) error {
	_, err := w.Write(SamplesToPCM(samples))
	return err
}

// Close patches the header sizes. It does not close the underlying writer.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var header [wavHeaderSize]byte
	writeWAVHeader(header[:], w.dataSize, w.sampleRate, w.channels)
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek WAV header: %w", err)
	}
	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("patch WAV header: %w", err)
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}

func writeWAVHeader(dst []byte, dataSize uint32, sampleRate, channels int) {
	copy(dst[0:4], "RIFF")
	binary.LittleEndian.PutUint32(dst[4:8], 36+dataSize)
	copy(dst[8:12], "WAVE")
	copy(dst[12:16], "fmt ")
	binary.LittleEndian.PutUint32(dst[16:20], 16)
	binary.LittleEndian.PutUint16(dst[20:22], 1)
	binary.LittleEndian.PutUint16(dst[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(dst[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(dst[34:36], 16)
	copy(dst[36:40], "data")
	binary.LittleEndian.PutUint32(dst[40:44], dataSize)
}
