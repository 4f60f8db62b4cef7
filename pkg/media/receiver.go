package media

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
	"g711enhance/pkg/metrics"
)

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// Codec fixes the expected payload, typically from SDP. When zero the
	// first packet decides.
	Codec        CodecInfo
	Decoder      g711.Options
	MaxGapFrames int
	StreamID     string
	Logger       *logrus.Logger
}

// Receiver turns an RTP stream into enhanced linear PCM written to out.
type Receiver struct {
	out      io.Writer
	opts     ReceiverOptions
	depack   *Depacketizer
	decoder  *g711.Decoder
	stats    *RTPStats
	ssrc     uint32
	packets  uint64
	dropped  uint64
	frames   uint64
	lost     int64
	streamID string
	logger   *logrus.Entry
}

func NewReceiver(out io.Writer, opts ReceiverOptions) *Receiver {
	if opts.StreamID == "" {
		opts.StreamID = uuid.New().String()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	opts.Decoder.StreamID = opts.StreamID
	opts.Decoder.Logger = opts.Logger

	logger := opts.Logger.WithField("stream_id", opts.StreamID)
	return &Receiver{
		out:      out,
		opts:     opts,
		depack:   NewDepacketizer(opts.Codec, opts.MaxGapFrames, logger),
		stats:    NewRTPStats(defaultRTPRate),
		streamID: opts.StreamID,
		logger:   logger,
	}
}

func (r *Receiver) StreamID() string { return r.streamID }
func (r *Receiver) Stats() *RTPStats { return r.stats }

// Dropped is the number of packets discarded so far.
func (r *Receiver) Dropped() uint64 { return r.dropped }

// Frames is the number of PCM frames written so far.
func (r *Receiver) Frames() uint64 { return r.frames }

// Decoder is nil until the codec is known.
func (r *Receiver) Decoder() *g711.Decoder { return r.decoder }

// HandlePacket processes one raw datagram. Malformed, foreign and late
// packets are dropped and counted; the returned error is a decode or
// write failure that ends the stream.
func (r *Receiver) HandlePacket(raw []byte, arrival time.Time) error {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		r.drop("parse_error", fmt.Errorf("%w: %v", ErrShortPacket, err), 0)
		return nil
	}

	if r.packets == 0 {
		r.ssrc = pkt.SSRC
		r.logger.WithFields(logrus.Fields{
			"ssrc":         pkt.SSRC,
			"payload_type": pkt.PayloadType,
			"seq":          pkt.SequenceNumber,
			"timestamp":    pkt.Timestamp,
			"payload_size": len(pkt.Payload),
		}).Info("First RTP packet received")
	} else if pkt.SSRC != r.ssrc {
		r.drop("foreign_ssrc", fmt.Errorf("ssrc %#08x, want %#08x", pkt.SSRC, r.ssrc), pkt.SequenceNumber)
		return nil
	}

	frames, err := r.depack.Push(&pkt)
	if err != nil {
		reason := "unsupported_payload"
		if errors.Is(err, ErrLatePacket) {
			reason = "late"
		}
		r.drop(reason, err, pkt.SequenceNumber)
		return nil
	}

	r.packets++
	r.stats.Update(&pkt, arrival)
	if metrics.IsMetricsEnabled() {
		metrics.RecordRTPPacket(r.streamID)
		metrics.SetRTPJitter(r.streamID, r.stats.Jitter())
		if lost := r.stats.Lost(); lost > r.lost {
			metrics.RecordRTPLostPackets(r.streamID, int(lost-r.lost))
			r.lost = lost
		}
	}
	return r.decode(frames)
}

// HandleRTCP logs incoming control packets and remembers sender reports
// for the next receiver report.
func (r *Receiver) HandleRTCP(raw []byte, arrival time.Time) error {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("parse RTCP: %w", err)
	}
	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			r.stats.NoteSenderReport(p, arrival)
			r.logger.WithField("ssrc", p.SSRC).Trace("Received RTCP sender report")
		case *rtcp.Goodbye:
			r.logger.WithField("sources", p.Sources).Info("Received RTCP BYE")
		default:
			r.logger.WithField("type", fmt.Sprintf("%T", pkt)).Trace("Received RTCP packet")
		}
	}
	return nil
}

// Flush decodes any partial frame left at the end of the stream.
func (r *Receiver) Flush() error {
	return r.decode(r.depack.Flush())
}

// ReceiverReport marshals an RTCP receiver report for the stream.
func (r *Receiver) ReceiverReport(localSSRC uint32, now time.Time) ([]byte, error) {
	return r.stats.ReceiverReport(localSSRC, "g711enhance-"+r.streamID, now)
}

// Summary logs the reception statistics of the stream.
func (r *Receiver) Summary() {
	loss, jitter, packets := r.stats.Snapshot()
	fields := logrus.Fields{
		"packets":   packets,
		"dropped":   r.dropped,
		"frames":    r.frames,
		"loss":      fmt.Sprintf("%.2f%%", loss*100),
		"jitter_ms": jitter * 1000,
	}
	if r.decoder != nil {
		s := r.decoder.Engine().Stats()
		fields["concealed"] = s.LostFrames
		fields["erasures"] = s.Erasures
	}
	r.logger.WithFields(fields).Info("RTP stream finished")
}

func (r *Receiver) decode(frames []bitstream.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	if r.decoder == nil {
		codec, ok := r.depack.Codec()
		if !ok {
			return nil
		}
		dec, err := g711.NewDecoder(codec.Law, r.opts.Decoder)
		if err != nil {
			return err
		}
		r.decoder = dec
	}

	for _, f := range frames {
		out, err := r.decoder.Decode(f.Codes, f.Lost)
		if err != nil {
			return err
		}
		if _, err := r.out.Write(SamplesToPCM(out[:])); err != nil {
			return fmt.Errorf("write PCM: %w", err)
		}
		r.frames++
	}
	return nil
}

func (r *Receiver) drop(reason string, err error, seq uint16) {
	r.dropped++
	r.logger.WithError(err).WithFields(logrus.Fields{
		"seq":    seq,
		"reason": reason,
	}).Debug("Dropping RTP packet")
	if metrics.IsMetricsEnabled() {
		metrics.RecordRTPDroppedPackets(r.streamID, reason, 1)
	}
}
