package media

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	rtpSeqMod      = 1 << 16
	maxDropout     = 3000
	maxMisorder    = 100
	defaultRTPRate = 8000
)

// RTPStats tracks reception quality of one RTP source: sequence extension,
// cumulative loss and the interarrival jitter estimator of RFC 3550.
type RTPStats struct {
	mu sync.Mutex

	clockRate uint32
	started   bool
	ssrc      uint32
	baseSeq   uint16
	maxSeq    uint16
	cycles    uint32
	received  uint64

	expectedPrior uint64
	receivedPrior uint64

	// jitter is scaled by 16.
	jitter     uint32
	transit    int64
	hasTransit bool
	lastSR     uint32
	lastSRAt   time.Time
}

func NewRTPStats(clockRate uint32) *RTPStats {
	if clockRate == 0 {
		clockRate = defaultRTPRate
	}
	return &RTPStats{clockRate: clockRate}
}

// Update accounts for one packet that arrived at the given time.
func (s *RTPStats) Update(pkt *rtp.Packet, arrival time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := pkt.SequenceNumber
	if !s.started {
		s.started = true
		s.ssrc = pkt.SSRC
		s.baseSeq = seq
		s.maxSeq = seq
	} else {
		delta := seq - s.maxSeq
		switch {
		case delta < maxDropout:
			if seq < s.maxSeq {
				s.cycles += rtpSeqMod
			}
			s.maxSeq = seq
		case delta <= rtpSeqMod-maxMisorder:
			// A large jump restarts the sequence space.
			s.baseSeq = seq
			s.maxSeq = seq
			s.cycles = 0
			s.received = 0
			s.expectedPrior = 0
			s.receivedPrior = 0
		}
	}
	s.received++

	rate := int64(s.clockRate)
	arrivalTS := arrival.Unix()*rate + int64(arrival.Nanosecond())*rate/int64(time.Second)
	transit := arrivalTS - int64(pkt.Timestamp)
	if s.hasTransit {
		d := transit - s.transit
		if d < 0 {
			d = -d
		}
		s.jitter += uint32(d) - ((s.jitter + 8) >> 4)
	}
	s.transit = transit
	s.hasTransit = true
}

// NoteSenderReport records the middle 32 bits of a sender report's NTP
// time so the next reception report can echo it.
func (s *RTPStats) NoteSenderReport(sr *rtcp.SenderReport, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSR = uint32(sr.NTPTime >> 16)
	s.lastSRAt = at
}

func (s *RTPStats) extendedMax() uint32 {
	return s.cycles + uint32(s.maxSeq)
}

func (s *RTPStats) expected() uint64 {
	return uint64(s.extendedMax()) - uint64(s.baseSeq) + 1
}

// Snapshot returns the cumulative loss fraction, the jitter in seconds and
// the number of packets received.
func (s *RTPStats) Snapshot() (packetLoss float64, jitterSeconds float64, packets uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, 0, 0
	}
	expected := s.expected()
	if expected > s.received {
		packetLoss = float64(expected-s.received) / float64(expected)
	}
	jitterSeconds = float64(s.jitter>>4) / float64(s.clockRate)
	return packetLoss, jitterSeconds, s.received
}

// Lost is the cumulative number of packets expected but not received.
func (s *RTPStats) Lost() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0
	}
	return int64(s.expected()) - int64(s.received)
}

// Jitter is the interarrival jitter in timestamp units.
func (s *RTPStats) Jitter() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jitter >> 4
}

// ReceptionReport builds a report block for the tracked source and starts a
// new reporting interval. It returns nil before the first packet.
func (s *RTPStats) ReceptionReport(now time.Time) *rtcp.ReceptionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	expected := s.expected()
	lost := int64(expected) - int64(s.received)
	// Cumulative loss is a signed 24-bit field.
	switch {
	case lost > 0x7FFFFF:
		lost = 0x7FFFFF
	case lost < -0x800000:
		lost = -0x800000
	}

	expectedInterval := expected - s.expectedPrior
	receivedInterval := s.received - s.receivedPrior
	s.expectedPrior = expected
	s.receivedPrior = s.received

	var fraction uint8
	if expectedInterval > 0 && expectedInterval > receivedInterval {
		fraction = uint8(((expectedInterval - receivedInterval) << 8) / expectedInterval)
	}

	var delay uint32
	if !s.lastSRAt.IsZero() {
		delay = uint32(now.Sub(s.lastSRAt) * 65536 / time.Second)
	}

	return &rtcp.ReceptionReport{
		SSRC:               s.ssrc,
		FractionLost:       fraction,
		TotalLost:          uint32(lost) & 0xFFFFFF,
		LastSequenceNumber: s.extendedMax(),
		Jitter:             s.jitter >> 4,
		LastSenderReport:   s.lastSR,
		Delay:              delay,
	}
}

// ReceiverReport marshals a receiver report with an SDES CNAME chunk, the
// compound packet a receive-only endpoint sends.
func (s *RTPStats) ReceiverReport(localSSRC uint32, cname string, now time.Time) ([]byte, error) {
	rr := &rtcp.ReceiverReport{SSRC: localSSRC}
	if report := s.ReceptionReport(now); report != nil {
		rr.Reports = []rtcp.ReceptionReport{*report}
	}
	sdes := &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: localSSRC,
			Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: cname}},
		}},
	}
	return rtcp.Marshal([]rtcp.Packet{rr, sdes})
}
