package g711

import (
	"fmt"

	"github.com/sirupsen/logrus"

	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/metrics"
	"g711enhance/pkg/plc"
	"g711enhance/pkg/postfilter"
)

const (
	// bias added to the gate energy so silence still maps to a gain
	gateEnergyFloor = 300
	// 0.75, pre-emphasis of the gate energy measure
	gatePreEmphasis = 24576
	minGateGain     = 8192
	// per-sample smoothing of the gate gain, 350/32768 toward the target
	gateAttack  = 350
	gateRelease = 32768 - gateAttack
)

// Options configures a Decoder.
type Options struct {
	// NoiseGate attenuates low-level background between talk spurts.
	NoiseGate bool
	// Concealment enables frame-erasure concealment. The output is then
	// one frame late.
	Concealment bool
	// PostFilter enables the spectral post-filter. It is only used
	// together with Concealment.
	PostFilter bool
	StreamID   string
	Logger     *logrus.Logger
}

// DefaultOptions turns every enhancement on.
func DefaultOptions() Options {
	return Options{NoiseGate: true, Concealment: true, PostFilter: true}
}

// Decoder turns G.711 codes back into linear speech, concealing lost
// frames. One Decoder serves one stream.
type Decoder struct {
	law    Law
	opts   Options
	engine *plc.Engine

	// last two received frames, offset removed
	past [2 * FrameLen]int16
	// frames lost recently, saturating at 2 and decaying by one per good frame
	lossCount int16
	// pre-emphasized energy of the previous frame
	energy int32
	gain   int16

	run          int
	pendingLost  int
	prevStats    plc.Stats
	framesOutput uint64

	logger *logrus.Entry
}

func NewDecoder(law Law, opts Options) (*Decoder, error) {
	if law == nil {
		return nil, ErrUnsupportedLaw
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var engineOpts []plc.Option
	switch {
	case !opts.Concealment:
		engineOpts = append(engineOpts, plc.WithoutConcealment())
	case opts.PostFilter:
		engineOpts = append(engineOpts, plc.WithPostFilter(postfilter.New()))
	}

	d := &Decoder{
		law:    law,
		opts:   opts,
		engine: plc.New(engineOpts...),
		logger: logger.WithFields(logrus.Fields{
			"stream_id": opts.StreamID,
			"law":       law.Name(),
		}),
	}
	d.Reset()
	d.logger.WithFields(logrus.Fields{
		"concealment": opts.Concealment,
		"postfilter":  opts.Concealment && opts.PostFilter,
		"noise_gate":  opts.NoiseGate,
	}).Debug("G.711 decoder created")
	return d, nil
}

func (d *Decoder) Reset() {
	d.engine.Reset()
	clear(d.past[:])
	d.lossCount = 0
	d.energy = 0
	d.gain = fp.MaxInt16
	d.run = 0
	d.pendingLost = 0
	d.prevStats = plc.Stats{}
	d.framesOutput = 0
}

func (d *Decoder) Law() Law { return d.law }

// Delay is the number of samples the output lags the input.
func (d *Decoder) Delay() int {
	if d.opts.Concealment {
		return FrameLen
	}
	return 0
}

// LossCount is 0 on clean reception, up to 2 after recent losses.
func (d *Decoder) LossCount() int { return int(d.lossCount) }

// Engine exposes the concealment state for inspection.
func (d *Decoder) Engine() *plc.Engine { return d.engine }

// Decode produces the next output frame. code is ignored when lost is set
// and must otherwise hold exactly one frame.
func (d *Decoder) Decode(code []byte, lost bool) ([FrameLen]int16, error) {
	var out [FrameLen]int16
	if !lost && len(code) != FrameLen {
		return out, fmt.Errorf("decode %d codes: %w", len(code), ErrFrameSize)
	}

	var in *[FrameLen]int16
	if !lost {
		in = new([FrameLen]int16)
		offset := d.law.Offset()
		for i, c := range code {
			s, _, _ := d.law.Decode(c)
			in[i] = fp.Sub(s, offset)
		}
		copy(d.past[:FrameLen], d.past[FrameLen:])
		copy(d.past[FrameLen:], in[:])
	}

	out = d.engine.Process(lost, in)
	d.framesOutput++
	d.countLoss(lost)
	d.observe(lost)

	target := d.targetGain()
	if d.opts.NoiseGate {
		d.applyGate(&out, target)
	}
	return out, nil
}

func (d *Decoder) countLoss(lost bool) {
	l := int16(0)
	if lost {
		l = 1
	}
	n := fp.Min(fp.Add(d.lossCount, l), 2)
	d.lossCount = fp.Max(fp.Add(fp.Sub(n, 1), l), 0)
}

// targetGain derives the noise-gate target from the energy of the last two
// received frames: quiet input gives a low target, speech gives unity.
func (d *Decoder) targetGain() int16 {
	e := int32(gateEnergyFloor)
	for i := FrameLen; i < 2*FrameLen; i++ {
		v := fp.Sub(d.past[i], fp.MultR(d.past[i-1], gatePreEmphasis))
		e = fp.LMac(e, v, v)
	}
	total := fp.LAdd(d.energy, e)
	d.energy = e

	root, _ := fp.SqrtI31(total)
	return fp.Max(fp.ExtractH(fp.LShl(root, 9)), minGateGain)
}

// applyGate moves the gate gain toward target sample by sample and scales
// the frame with it while it is below unity.
func (d *Decoder) applyGate(out *[FrameLen]int16, target int16) {
	base := fp.LAdd(fp.LMult(target, gateAttack), 32768)
	for i := range out {
		d.gain = fp.MacR(base, d.gain, gateRelease)
		if d.gain < fp.MaxInt16 {
			out[i] = fp.MultR(d.gain, out[i])
		}
	}
}

// observe logs erasure runs and feeds the metrics.
func (d *Decoder) observe(lost bool) {
	state := d.engine.State()
	stats := d.engine.Stats()
	enabled := metrics.IsMetricsEnabled()

	if enabled {
		metrics.RecordFrameDecoded(d.law.Name(), lost)
		metrics.RecordResync(int(stats.Resyncs - d.prevStats.Resyncs))
		metrics.RecordUnstableLPC(int(stats.UnstableLPC - d.prevStats.UnstableLPC))
	}
	if stats.UnstableLPC > d.prevStats.UnstableLPC {
		d.logger.WithField("frame", d.framesOutput).Debug("Unstable predictor, keeping previous filter")
	}

	if lost {
		d.run++
		if d.opts.Concealment {
			d.pendingLost++
		}
		if d.run == 1 {
			d.logger.WithField("frame", d.framesOutput).Debug("Frame erasure started")
		}
	}
	// the class is known once the first lost frame has been synthesized
	if d.pendingLost > 0 && state != plc.FirstLoss {
		if enabled {
			for ; d.pendingLost > 0; d.pendingLost-- {
				metrics.RecordConcealment(d.engine.Class().String())
			}
		}
		d.pendingLost = 0
	}

	if !lost && d.run > 0 {
		d.logger.WithFields(logrus.Fields{
			"frame":  d.framesOutput,
			"lost":   d.run,
			"class":  d.engine.Class().String(),
			"pitch":  d.engine.Pitch(),
			"resync": stats.Resyncs > d.prevStats.Resyncs,
		}).Debug("Frame erasure ended")
		if enabled {
			metrics.RecordErasure(d.run)
		}
		d.run = 0
	}
	d.prevStats = stats
}
