package media

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"g711enhance/pkg/g711"
)

// DefaultPacketFrames is four codec frames, 20 ms per packet.
const DefaultPacketFrames = 4

// Packetizer groups G.711 codes into RTP packets of a fixed duration.
type Packetizer struct {
	p       rtp.Packetizer
	samples int
	buf     []byte
	first   bool
}

// NewPacketizer sends packets of framesPerPacket codec frames with the
// given payload type and SSRC.
func NewPacketizer(codec CodecInfo, ssrc uint32, framesPerPacket int) *Packetizer {
	if framesPerPacket <= 0 {
		framesPerPacket = DefaultPacketFrames
	}
	samples := framesPerPacket * g711.FrameLen
	mtu := uint16(samples + 12)
	return &Packetizer{
		p:       rtp.NewPacketizer(mtu, codec.PayloadType, ssrc, &codecs.G711Payloader{}, rtp.NewRandomSequencer(), uint32(codec.SampleRate)),
		samples: samples,
		buf:     make([]byte, 0, samples),
		first:   true,
	}
}

// Push appends codes and returns the packets completed by them.
func (p *Packetizer) Push(codes []byte) []*rtp.Packet {
	var out []*rtp.Packet
	for len(codes) > 0 {
		n := min(p.samples-len(p.buf), len(codes))
		p.buf = append(p.buf, codes[:n]...)
		codes = codes[n:]
		if len(p.buf) == p.samples {
			out = append(out, p.emit()...)
		}
	}
	return out
}

// Skip advances the timestamp over frames that are not sent, as a sender
// with discontinuous transmission or a lossy channel would.
func (p *Packetizer) Skip(samples int) {
	p.p.SkipSamples(uint32(samples))
}

// Flush sends a final short packet if codes are buffered.
func (p *Packetizer) Flush() []*rtp.Packet {
	if len(p.buf) == 0 {
		return nil
	}
	return p.emit()
}

func (p *Packetizer) emit() []*rtp.Packet {
	pkts := p.p.Packetize(p.buf, uint32(len(p.buf)))
	p.buf = p.buf[:0]
	// Only the start of the stream opens a talk spurt.
	for _, pkt := range pkts {
		pkt.Marker = p.first
		p.first = false
	}
	return pkts
}
