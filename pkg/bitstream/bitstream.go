// Package bitstream reads and writes coded G.711 frames in the two file
// formats of the ITU-T software tools: G.192 softbit, where every bit is a
// 16-bit word and each frame carries a synchronization header that can flag
// an erasure, and plain hardbit bytes.
package bitstream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	SyncGood   uint16 = 0x6B21
	SyncErased uint16 = 0x6B20

	BitOne  uint16 = 0x0081
	BitZero uint16 = 0x007F

	headerWords = 2
)

var (
	ErrBadSyncWord   = errors.New("bad G.192 sync word")
	ErrShortFrame    = errors.New("truncated frame")
	ErrFrameLength   = errors.New("frame length mismatch")
	ErrUnknownFormat = errors.New("unknown bitstream format")
	// ErrLossNotEncodable is returned when writing an erased frame to a
	// hardbit stream, which has no way to mark it.
	ErrLossNotEncodable = errors.New("hardbit streams cannot carry erased frames")
)

// Format selects the file layout.
type Format int

const (
	G192 Format = iota
	Hardbit
)

func (f Format) String() string {
	switch f {
	case G192:
		return "g192"
	case Hardbit:
		return "hardbit"
	default:
		return "unknown"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "g192", "g.192", "softbit":
		return G192, nil
	case "hardbit", "bit", "raw":
		return Hardbit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Frame is one coded frame. Codes is nil for erased frames.
type Frame struct {
	Codes []byte
	Lost  bool
}

// Reader returns successive frames of frameLen codes.
type Reader struct {
	r        *bufio.Reader
	format   Format
	frameLen int
	words    []uint16
	frames   int
}

func NewReader(r io.Reader, format Format, frameLen int) *Reader {
	return &Reader{
		r:        bufio.NewReader(r),
		format:   format,
		frameLen: frameLen,
		words:    make([]uint16, headerWords+8*frameLen),
	}
}

// Next returns the next frame, or io.EOF after the last complete one.
func (r *Reader) Next() (Frame, error) {
	var (
		f   Frame
		err error
	)
	switch r.format {
	case G192:
		f, err = r.nextSoftbit()
	case Hardbit:
		f, err = r.nextHardbit()
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownFormat, int(r.format))
	}
	if err == nil {
		r.frames++
	}
	return f, err
}

// Frames is the number of frames returned so far.
func (r *Reader) Frames() int { return r.frames }

func (r *Reader) nextHardbit() (Frame, error) {
	codes := make([]byte, r.frameLen)
	if _, err := io.ReadFull(r.r, codes); err != nil {
		return Frame{}, r.wrapRead(err)
	}
	return Frame{Codes: codes}, nil
}

// nextSoftbit reads a header and then as many bit words as it announces.
// An erased sync word or an empty payload marks the frame lost.
func (r *Reader) nextSoftbit() (Frame, error) {
	head := r.words[:headerWords]
	if err := binary.Read(r.r, binary.LittleEndian, head); err != nil {
		return Frame{}, r.wrapRead(err)
	}
	sync, nbits := head[0], int(head[1])
	if sync != SyncGood && sync != SyncErased {
		return Frame{}, fmt.Errorf("frame %d: %w: %#04x", r.frames, ErrBadSyncWord, sync)
	}
	if nbits > 8*r.frameLen {
		return Frame{}, fmt.Errorf("frame %d: %w: %d bits", r.frames, ErrFrameLength, nbits)
	}

	bits := r.words[headerWords : headerWords+nbits]
	if err := binary.Read(r.r, binary.LittleEndian, bits); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, r.wrapRead(err)
	}
	if sync == SyncErased || nbits == 0 {
		return Frame{Lost: true}, nil
	}
	if nbits != 8*r.frameLen {
		return Frame{}, fmt.Errorf("frame %d: %w: %d bits", r.frames, ErrFrameLength, nbits)
	}
	return Frame{Codes: packBits(bits)}, nil
}

// wrapRead keeps io.EOF intact at a frame boundary and reports anything
// shorter as a truncated frame.
func (r *Reader) wrapRead(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("frame %d: %w", r.frames, ErrShortFrame)
	}
	return fmt.Errorf("frame %d: %w", r.frames, err)
}

// packBits turns softbit words, most significant bit first, into bytes.
// Any word other than BitOne counts as zero.
func packBits(bits []uint16) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var b byte
		for _, w := range bits[8*i : 8*i+8] {
			b <<= 1
			if w == BitOne {
				b |= 1
			}
		}
		out[i] = b
	}
	return out
}

func unpackBits(codes []byte, bits []uint16) {
	for i, b := range codes {
		for j := 0; j < 8; j++ {
			w := BitZero
			if b&(0x80>>j) != 0 {
				w = BitOne
			}
			bits[8*i+j] = w
		}
	}
}

// Writer emits frames in the chosen format.
type Writer struct {
	w        *bufio.Writer
	format   Format
	frameLen int
	words    []uint16
}

func NewWriter(w io.Writer, format Format, frameLen int) *Writer {
	return &Writer{
		w:        bufio.NewWriter(w),
		format:   format,
		frameLen: frameLen,
		words:    make([]uint16, headerWords+8*frameLen),
	}
}

// Write appends one frame. Erased frames keep their full length in G.192
// with the erasure sync word and all bits zero.
func (w *Writer) Write(f Frame) error {
	if !f.Lost && len(f.Codes) != w.frameLen {
		return fmt.Errorf("%w: %d codes, want %d", ErrFrameLength, len(f.Codes), w.frameLen)
	}

	switch w.format {
	case Hardbit:
		if f.Lost {
			return ErrLossNotEncodable
		}
		_, err := w.w.Write(f.Codes)
		return err
	case G192:
		w.words[0] = SyncGood
		w.words[1] = uint16(8 * w.frameLen)
		bits := w.words[headerWords:]
		if f.Lost {
			w.words[0] = SyncErased
			for i := range bits {
				bits[i] = BitZero
			}
		} else {
			unpackBits(f.Codes, bits)
		}
		return binary.Write(w.w, binary.LittleEndian, w.words)
	}
	return fmt.Errorf("%w: %d", ErrUnknownFormat, int(w.format))
}

// Flush writes any buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
