package g711

import (
	"fmt"

	"github.com/sirupsen/logrus"

	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/lpc"
	"g711enhance/pkg/metrics"
)

const (
	nsOrder = lpc.NoiseShapingOrder

	// normalization shift of the noise-shaping energy above which the
	// block counts as silent
	maxNorm = 16

	// 0.92, bandwidth expansion of the noise-shaping filter
	nsGamma = 30147

	// half-widths of the input ranges forced onto the quietest code
	aLawDeadZone  = 11
	muLawDeadZone = 7
)

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	// NoiseShaping enables the DC blocker and the perceptual shaping of
	// the quantization noise.
	NoiseShaping bool
	StreamID     string
	Logger       *logrus.Logger
}

// Encoder quantizes 5 ms frames of linear speech to G.711 codes.
type Encoder struct {
	law Law
	ns  bool
	hpf HighPass

	// last two frames as the decoder reconstructs them
	past [lpc.NoiseShapingWindowLen]int16
	a    [nsOrder + 1]int16
	// first reflection coefficient of the last stable fit
	rc0 int16
	// quantization error of the last nsOrder samples, newest first
	errMem [nsOrder]int16

	frames uint64
	logger *logrus.Entry
}

func NewEncoder(law Law, opts EncoderOptions) (*Encoder, error) {
	if law == nil {
		return nil, ErrUnsupportedLaw
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Encoder{
		law: law,
		ns:  opts.NoiseShaping,
		logger: logger.WithFields(logrus.Fields{
			"stream_id": opts.StreamID,
			"law":       law.Name(),
		}),
	}
	e.Reset()
	e.logger.WithField("noise_shaping", e.ns).Debug("G.711 encoder created")
	return e, nil
}

func (e *Encoder) Reset() {
	e.hpf.Reset()
	clear(e.past[:])
	clear(e.errMem[:])
	e.rc0 = 0
	e.a = [nsOrder + 1]int16{lpc.CoeffScale.One()}
	e.frames = 0
}

func (e *Encoder) Law() Law { return e.law }

// Frames returns the number of frames encoded since the last reset.
func (e *Encoder) Frames() uint64 { return e.frames }

// Encode quantizes one frame.
func (e *Encoder) Encode(frame *[FrameLen]int16) [FrameLen]byte {
	var out [FrameLen]byte
	e.frames++
	if metrics.IsMetricsEnabled() {
		metrics.RecordFrameEncoded(e.law.Name())
	}

	if !e.ns {
		for i, x := range frame {
			out[i] = e.law.Encode(x).Index
		}
		return out
	}

	var in [FrameLen]int16
	e.hpf.Filter(frame[:], in[:])
	silent := e.updateFilter()

	copy(e.past[:FrameLen], e.past[FrameLen:])
	local := e.past[FrameLen:]
	offset := e.law.Offset()

	for i, x := range in {
		acc := fp.LMult(e.a[0], x)
		acc = fp.LMac(acc, e.a[0], offset)
		for j, m := range e.errMem {
			acc = fp.LMac(acc, e.a[j+1], m)
		}
		shaped := fp.ExtractH(fp.LShl(acc, 3))

		out[i], local[i] = e.quantize(shaped, silent)
		local[i] = fp.Sub(local[i], offset)

		copy(e.errMem[1:], e.errMem[:nsOrder-1])
		e.errMem[0] = fp.Sub(x, local[i])
	}
	return out
}

// EncodeSamples encodes a whole number of frames.
func (e *Encoder) EncodeSamples(pcm []int16) ([]byte, error) {
	if len(pcm)%FrameLen != 0 {
		return nil, fmt.Errorf("encode %d samples: %w", len(pcm), ErrFrameSize)
	}
	out := make([]byte, 0, len(pcm))
	for off := 0; off < len(pcm); off += FrameLen {
		codes := e.Encode((*[FrameLen]int16)(pcm[off : off+FrameLen]))
		out = append(out, codes[:]...)
	}
	return out, nil
}

// updateFilter derives the noise-shaping filter from the past decoded
// signal and reports whether that signal is near silent. In silence the
// filter is flattened instead of bandwidth-expanded.
func (e *Encoder) updateFilter() bool {
	r, norm := lpc.AutocorrNoiseShaping(&e.past)
	res := lpc.Levinson(r, nsOrder)
	if res.Stable {
		copy(e.a[:], res.A)
		e.rc0 = res.RC[0]
	}

	if norm >= maxNorm {
		for i := 1; i <= nsOrder; i++ {
			e.a[i] = fp.Shr(e.a[i], int16(i)+norm-maxNorm)
		}
		return true
	}

	gamma := int16(nsGamma)
	// strongly high-pass blocks get less shaping: alpha = 16*(r1/r0 + 1 + 0.75/16)
	if alpha := fp.Negate(e.rc0); alpha < -32256 {
		alpha = fp.Shl(fp.Add(fp.Add(alpha, 32767), 1536), 4)
		gamma = fp.MultR(nsGamma, alpha)
	}
	copy(e.a[:], lpc.Weight(e.a[:], gamma))
	return false
}

// quantize returns the code for a shaped sample and its local
// reconstruction. In silent blocks, values near zero go to the quietest
// code to avoid crackles.
func (e *Encoder) quantize(x int16, silent bool) (byte, int16) {
	if silent {
		switch e.law.PayloadType() {
		case PayloadTypePCMA:
			if off := e.law.Offset(); x >= off-aLawDeadZone && x <= off+aLawDeadZone {
				return e.law.Silence(), off
			}
		case PayloadTypePCMU:
			if x >= -muLawDeadZone && x <= muLawDeadZone {
				return e.law.Silence(), 0
			}
		}
	}
	c := e.law.Encode(x)
	return c.Index, c.Local
}
