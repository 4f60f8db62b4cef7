package media

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
)

// DefaultMaxGapFrames bounds the erasure emitted for a single gap, 250 ms.
const DefaultMaxGapFrames = 50

var (
	ErrLatePacket      = errors.New("late or duplicate RTP packet")
	ErrPayloadMismatch = errors.New("payload type changed mid-stream")
)

// Depacketizer reassembles G.711 RTP payloads into codec frames. Gaps in
// the timestamp sequence become erased frames.
type Depacketizer struct {
	codec    CodecInfo
	hasCodec bool
	maxGap   int

	started bool
	lastSeq uint16
	nextTS  uint32
	pending []byte

	logger *logrus.Entry
}

// NewDepacketizer returns a depacketizer for the given codec. A zero
// CodecInfo selects the codec from the first packet's payload type.
func NewDepacketizer(codec CodecInfo, maxGapFrames int, logger *logrus.Entry) *Depacketizer {
	if maxGapFrames <= 0 {
		maxGapFrames = DefaultMaxGapFrames
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Depacketizer{
		codec:    codec,
		hasCodec: codec.Law != nil,
		maxGap:   maxGapFrames,
		pending:  make([]byte, 0, g711.FrameLen),
		logger:   logger,
	}
}

// Codec is the codec in use, or false before it is known.
func (d *Depacketizer) Codec() (CodecInfo, bool) { return d.codec, d.hasCodec }

// Push consumes one packet and returns the frames it completes, erased
// frames for any preceding gap first.
func (d *Depacketizer) Push(pkt *rtp.Packet) ([]bitstream.Frame, error) {
	if !d.hasCodec {
		info, ok := GetCodecInfo(pkt.PayloadType)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedPayload, pkt.PayloadType)
		}
		d.codec, d.hasCodec = info, true
	}
	if pkt.PayloadType != d.codec.PayloadType {
		return nil, fmt.Errorf("%w: %d, want %d", ErrPayloadMismatch, pkt.PayloadType, d.codec.PayloadType)
	}

	var frames []bitstream.Frame
	if !d.started {
		d.started = true
		d.nextTS = pkt.Timestamp
	} else {
		if int16(pkt.SequenceNumber-d.lastSeq) <= 0 {
			return nil, fmt.Errorf("%w: seq %d after %d", ErrLatePacket, pkt.SequenceNumber, d.lastSeq)
		}
		gap := int32(pkt.Timestamp - d.nextTS)
		switch {
		case gap < 0:
			return nil, fmt.Errorf("%w: timestamp %d before %d", ErrLatePacket, pkt.Timestamp, d.nextTS)
		case gap > 0 && pkt.Marker:
			// A talk spurt after discontinuous transmission, nothing was lost.
			d.logger.WithFields(logrus.Fields{
				"seq": pkt.SequenceNumber,
				"gap": gap,
			}).Debug("Talk spurt resumed")
			frames = append(frames, d.flushPending()...)
		case gap > 0:
			frames = append(frames, d.erase(int(gap), pkt.SequenceNumber)...)
		}
	}
	d.lastSeq = pkt.SequenceNumber
	d.nextTS = pkt.Timestamp + uint32(len(pkt.Payload))

	payload := pkt.Payload
	for len(payload) > 0 {
		n := min(g711.FrameLen-len(d.pending), len(payload))
		d.pending = append(d.pending, payload[:n]...)
		payload = payload[n:]
		if len(d.pending) == g711.FrameLen {
			frames = append(frames, bitstream.Frame{Codes: append([]byte(nil), d.pending...)})
			d.pending = d.pending[:0]
		}
	}
	return frames, nil
}

// erase turns a gap of the given number of samples into erased frames. A
// partially filled frame is lost with it, and framing restarts at the next
// payload.
func (d *Depacketizer) erase(samples int, seq uint16) []bitstream.Frame {
	missing := len(d.pending) + samples
	n := (missing + g711.FrameLen - 1) / g711.FrameLen
	if n > d.maxGap {
		d.logger.WithFields(logrus.Fields{
			"seq":    seq,
			"frames": n,
			"max":    d.maxGap,
		}).Warn("RTP gap exceeds concealment bound, truncating")
		n = d.maxGap
	}
	d.pending = d.pending[:0]
	frames := make([]bitstream.Frame, n)
	for i := range frames {
		frames[i].Lost = true
	}
	return frames
}

// Flush completes a partial frame with silence codes.
func (d *Depacketizer) Flush() []bitstream.Frame {
	return d.flushPending()
}

func (d *Depacketizer) flushPending() []bitstream.Frame {
	if len(d.pending) == 0 || !d.hasCodec {
		return nil
	}
	codes := make([]byte, g711.FrameLen)
	n := copy(codes, d.pending)
	for i := n; i < len(codes); i++ {
		codes[i] = d.codec.Law.Silence()
	}
	d.pending = d.pending[:0]
	return []bitstream.Frame{{Codes: codes}}
}
