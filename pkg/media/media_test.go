package media

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func quietEntry() *logrus.Entry {
	return logrus.NewEntry(quietLogger())
}

func pcmu() CodecInfo {
	info, _ := GetCodecInfo(0)
	return info
}

func packet(seq uint16, ts uint32, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x1234,
		},
		Payload: payload,
	}
}

func toneCodes(n int) []byte {
	codes := make([]byte, n)
	for i := range codes {
		x := int16(6000 * math.Sin(2*math.Pi*440*float64(i)/8000))
		codes[i] = g711.MuLaw.Encode(x).Index
	}
	return codes
}

func TestCodecRegistry(t *testing.T) {
	info, ok := GetCodecInfo(8)
	require.True(t, ok)
	assert.Equal(t, "PCMA", info.Name)
	assert.Equal(t, g711.ALaw, info.Law)

	info, ok = CodecByName("pcmu")
	require.True(t, ok)
	assert.Equal(t, uint8(0), info.PayloadType)

	_, ok = GetCodecInfo(18)
	assert.False(t, ok)

	raw, err := packet(1, 0, make([]byte, 160)).Marshal()
	require.NoError(t, err)
	info, err = DetectCodec(raw)
	require.NoError(t, err)
	assert.Equal(t, "PCMU", info.Name)

	_, err = DetectCodec(raw[:4])
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestPCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	assert.Equal(t, samples, PCMToSamples(SamplesToPCM(samples)))
	assert.Equal(t, []byte{0x01, 0x00, 0xFF, 0xFF}, SamplesToPCM([]int16{1, -1}))

	pcm := DecodePayload([]byte{0xFF, 0x80}, g711.MuLaw)
	assert.Equal(t, []int16{0, 32124}, PCMToSamples(pcm))
}

func TestFrameReaderPadsLastFrame(t *testing.T) {
	samples := make([]int16, g711.FrameLen+3)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	r := NewFrameReader(bytes.NewReader(SamplesToPCM(samples)))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int16(1), f[0])

	f, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, int16(g711.FrameLen+1), f[0])
	assert.Equal(t, int16(0), f[3])

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWAVWriter(f, 8000, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples([]int16{1, 2, 3, 4}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, wavHeaderSize+8)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(36+8), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[28:32]))
	assert.Equal(t, "data", string(data[36:40]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, []int16{1, 2, 3, 4}, PCMToSamples(data[wavHeaderSize:]))

	_, err = w.Write([]byte{0})
	assert.Error(t, err)

	_, err = NewWAVWriter(f, 0, 1)
	assert.Error(t, err)
}

func TestDepacketizerFraming(t *testing.T) {
	d := NewDepacketizer(CodecInfo{}, 0, quietEntry())

	frames, err := d.Push(packet(10, 1000, toneCodes(160)))
	require.NoError(t, err)
	assert.Len(t, frames, 4)
	info, ok := d.Codec()
	require.True(t, ok)
	assert.Equal(t, "PCMU", info.Name)

	// 60-sample payloads straddle frame boundaries.
	frames, err = d.Push(packet(11, 1160, toneCodes(60)))
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	frames, err = d.Push(packet(12, 1220, toneCodes(60)))
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	frames = d.Flush()
	assert.Nil(t, frames)

	_, err = d.Push(packet(13, 1280, toneCodes(10)))
	require.NoError(t, err)
	frames = d.Flush()
	require.Len(t, frames, 1)
	assert.Equal(t, g711.MuLaw.Silence(), frames[0].Codes[g711.FrameLen-1])
}

func TestDepacketizerGaps(t *testing.T) {
	t.Run("lost packet", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 0, quietEntry())
		_, err := d.Push(packet(1, 0, toneCodes(160)))
		require.NoError(t, err)

		frames, err := d.Push(packet(3, 320, toneCodes(160)))
		require.NoError(t, err)
		require.Len(t, frames, 8)
		for i := 0; i < 4; i++ {
			assert.True(t, frames[i].Lost, "frame %d", i)
		}
		for i := 4; i < 8; i++ {
			assert.False(t, frames[i].Lost, "frame %d", i)
		}
	})

	t.Run("partial frame is lost with the gap", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 0, quietEntry())
		_, err := d.Push(packet(1, 0, toneCodes(20)))
		require.NoError(t, err)
		frames, err := d.Push(packet(3, 40, toneCodes(40)))
		require.NoError(t, err)
		require.Len(t, frames, 2)
		assert.True(t, frames[0].Lost)
		assert.False(t, frames[1].Lost)
	})

	t.Run("bounded", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 5, quietEntry())
		_, err := d.Push(packet(1, 0, toneCodes(160)))
		require.NoError(t, err)
		frames, err := d.Push(packet(500, 80000, toneCodes(160)))
		require.NoError(t, err)
		assert.Len(t, frames, 5+4)
	})

	t.Run("talk spurt", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 0, quietEntry())
		_, err := d.Push(packet(1, 0, toneCodes(160)))
		require.NoError(t, err)
		p := packet(2, 8000, toneCodes(160))
		p.Marker = true
		frames, err := d.Push(p)
		require.NoError(t, err)
		require.Len(t, frames, 4)
		for _, f := range frames {
			assert.False(t, f.Lost)
		}
	})

	t.Run("late and duplicate", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 0, quietEntry())
		_, err := d.Push(packet(5, 800, toneCodes(160)))
		require.NoError(t, err)
		_, err = d.Push(packet(5, 800, toneCodes(160)))
		assert.ErrorIs(t, err, ErrLatePacket)
		_, err = d.Push(packet(4, 640, toneCodes(160)))
		assert.ErrorIs(t, err, ErrLatePacket)
	})

	t.Run("payload type", func(t *testing.T) {
		d := NewDepacketizer(pcmu(), 0, quietEntry())
		p := packet(1, 0, toneCodes(160))
		p.PayloadType = 8
		_, err := d.Push(p)
		assert.ErrorIs(t, err, ErrPayloadMismatch)

		d = NewDepacketizer(CodecInfo{}, 0, quietEntry())
		p.PayloadType = 18
		_, err = d.Push(p)
		assert.ErrorIs(t, err, ErrUnsupportedPayload)
	})
}

func TestReceiverPassThrough(t *testing.T) {
	var out bytes.Buffer
	r := NewReceiver(&out, ReceiverOptions{Logger: quietLogger()})

	codes := toneCodes(480)
	pk := NewPacketizer(pcmu(), 0xCAFE, 0)
	pkts := pk.Push(codes)
	require.Len(t, pkts, 3)
	assert.True(t, pkts[0].Marker)
	assert.False(t, pkts[1].Marker)

	now := time.Now()
	for i, p := range pkts {
		raw, err := p.Marshal()
		require.NoError(t, err)
		require.NoError(t, r.HandlePacket(raw, now.Add(time.Duration(i)*20*time.Millisecond)))
	}
	require.NoError(t, r.HandlePacket([]byte{0x80}, now))
	require.NoError(t, r.Flush())

	assert.Equal(t, uint64(1), r.Dropped())
	assert.Equal(t, uint64(12), r.Frames())
	got := PCMToSamples(out.Bytes())
	require.Len(t, got, 480)
	for i, c := range codes {
		want, _, _ := g711.MuLaw.Decode(c)
		assert.Equal(t, want, got[i], "sample %d", i)
	}
}

func TestReceiverConcealsGap(t *testing.T) {
	var out bytes.Buffer
	r := NewReceiver(&out, ReceiverOptions{
		Codec:   pcmu(),
		Decoder: g711.DefaultOptions(),
		Logger:  quietLogger(),
	})

	codes := toneCodes(160 * 20)
	pk := NewPacketizer(pcmu(), 0xCAFE, 0)
	now := time.Now()
	for i, p := range pk.Push(codes) {
		if i == 10 {
			continue
		}
		raw, err := p.Marshal()
		require.NoError(t, err)
		require.NoError(t, r.HandlePacket(raw, now.Add(time.Duration(i)*20*time.Millisecond)))
	}

	assert.Equal(t, uint64(80), r.Frames())
	require.NotNil(t, r.Decoder())
	assert.Equal(t, uint64(4), r.Decoder().Engine().Stats().LostFrames)
	assert.Equal(t, int64(1), r.Stats().Lost())

	// The concealed span is not silent.
	got := PCMToSamples(out.Bytes())
	var peak int16
	for _, s := range got[(40+1)*g711.FrameLen : (44+1)*g711.FrameLen] {
		if s > peak {
			peak = s
		}
	}
	assert.Greater(t, peak, int16(500))
}

func TestReceiverReport(t *testing.T) {
	r := NewReceiver(io.Discard, ReceiverOptions{Codec: pcmu(), Logger: quietLogger()})
	now := time.Now()
	for i, seq := range []uint16{100, 101, 103, 104} {
		raw, err := packet(seq, uint32(seq-100)*160, toneCodes(160)).Marshal()
		require.NoError(t, err)
		require.NoError(t, r.HandlePacket(raw, now.Add(time.Duration(i)*20*time.Millisecond)))
	}

	sr := &rtcp.SenderReport{SSRC: 0x1234, NTPTime: 0xAAAABBBBCCCCDDDD}
	raw, err := sr.Marshal()
	require.NoError(t, err)
	require.NoError(t, r.HandleRTCP(raw, now))

	data, err := r.ReceiverReport(0x5555, now.Add(time.Second))
	require.NoError(t, err)
	pkts, err := rtcp.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, pkts, 2)

	rr, ok := pkts[0].(*rtcp.ReceiverReport)
	require.True(t, ok)
	assert.Equal(t, uint32(0x5555), rr.SSRC)
	require.Len(t, rr.Reports, 1)
	rep := rr.Reports[0]
	assert.Equal(t, uint32(0x1234), rep.SSRC)
	assert.Equal(t, uint32(1), rep.TotalLost)
	assert.Equal(t, uint32(104), rep.LastSequenceNumber)
	assert.Equal(t, uint8(256/5), rep.FractionLost)
	assert.Equal(t, uint32(0xBBBBCCCC), rep.LastSenderReport)
	assert.Equal(t, uint32(65536), rep.Delay)

	sdes, ok := pkts[1].(*rtcp.SourceDescription)
	require.True(t, ok)
	assert.Equal(t, "g711enhance-"+r.StreamID(), sdes.Chunks[0].Items[0].Text)

	// The interval restarts after each report.
	rep2 := r.Stats().ReceptionReport(now)
	require.NotNil(t, rep2)
	assert.Equal(t, uint8(0), rep2.FractionLost)
}

func TestRTPStatsJitter(t *testing.T) {
	s := NewRTPStats(8000)
	start := time.Unix(1000, 0)
	// Steady 20 ms spacing has no jitter.
	for i := 0; i < 10; i++ {
		s.Update(packet(uint16(i), uint32(i*160), nil), start.Add(time.Duration(i)*20*time.Millisecond))
	}
	assert.Zero(t, s.Jitter())

	// A packet 10 ms late moves the estimate by 80/16.
	s.Update(packet(10, 1600, nil), start.Add(210*time.Millisecond))
	assert.Equal(t, uint32(5), s.Jitter())

	loss, jitter, packets := s.Snapshot()
	assert.Zero(t, loss)
	assert.InDelta(t, 5.0/8000, jitter, 1e-9)
	assert.Equal(t, uint64(11), packets)
}

func TestRTPStatsSequenceWrap(t *testing.T) {
	s := NewRTPStats(8000)
	now := time.Now()
	for _, seq := range []uint16{65534, 65535, 0, 1} {
		s.Update(packet(seq, 0, nil), now)
	}
	rep := s.ReceptionReport(now)
	require.NotNil(t, rep)
	assert.Equal(t, uint32(1<<16+1), rep.LastSequenceNumber)
	assert.Zero(t, rep.TotalLost)
}

func TestLawFromSDP(t *testing.T) {
	offer := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.0.2.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 192.0.2.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 4000 RTP/AVP 96 8 0\r\n" +
		"a=rtpmap:96 opus/48000/2\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n"
	info, err := LawFromSDP([]byte(offer))
	require.NoError(t, err)
	assert.Equal(t, "PCMA", info.Name)
	assert.Equal(t, g711.ALaw, info.Law)

	static := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.0.2.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 4000 RTP/AVP 0\r\n"
	info, err = LawFromSDP([]byte(static))
	require.NoError(t, err)
	assert.Equal(t, "PCMU", info.Name)

	video := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.0.2.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 4000 RTP/AVP 96\r\n" +
		"a=rtpmap:96 VP8/90000\r\n"
	_, err = LawFromSDP([]byte(video))
	assert.ErrorIs(t, err, ErrNoAudioCodec)
}

func TestCaptureRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	start := time.Unix(1700000000, 250000000)
	src := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 5004}
	w, err := NewCaptureWriter(&buf, src, start)
	require.NoError(t, err)

	payloads := [][]byte{{0x80, 0x00, 0x00, 0x01}, {0x80, 0x00, 0x00, 0x02, 0xFF}}
	for i, p := range payloads {
		require.NoError(t, w.WritePacket(p, start.Add(time.Duration(i)*20*time.Millisecond)))
	}
	require.NoError(t, w.Flush())

	r, err := NewCaptureReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7/5004", r.Source)
	assert.True(t, r.Start.Equal(start))

	for i, want := range payloads {
		p, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, p.Data)
		assert.False(t, p.RTCP)
		assert.Equal(t, time.Duration(i)*20*time.Millisecond, p.Offset)
		assert.True(t, r.Arrival(p).Equal(start.Add(p.Offset)))
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)

	_, err = NewCaptureReader(bytes.NewReader([]byte("not a capture\n")))
	assert.ErrorIs(t, err, ErrBadCapture)
}

func TestPacketizerSkip(t *testing.T) {
	pk := NewPacketizer(pcmu(), 1, 1)
	a := pk.Push(toneCodes(g711.FrameLen))
	pk.Skip(g711.FrameLen)
	b := pk.Push(toneCodes(g711.FrameLen))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Timestamp+2*g711.FrameLen, b[0].Timestamp)
	assert.Equal(t, a[0].SequenceNumber+1, b[0].SequenceNumber)
	assert.Nil(t, pk.Flush())

	frames := []bitstream.Frame{}
	d := NewDepacketizer(pcmu(), 0, quietEntry())
	for _, p := range append(a, b...) {
		fs, err := d.Push(p)
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	require.Len(t, frames, 3)
	assert.True(t, frames[1].Lost)
}
