// Package plc conceals lost frames of narrowband speech.
//
// A lost frame is rebuilt by repeating the LPC residual of the last pitch
// period through the synthesis filter, then faded out. When speech comes
// back the extrapolation is realigned with the received frame and
// cross-faded into it. The engine delays its output by one frame; the
// look-ahead hides the analysis of the first lost frame and leaves room
// for the cross-fade.
package plc

import (
	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/postfilter"
)

const (
	// FrameLen is the number of samples handled per call (5 ms).
	FrameLen = 40
	// Order is the order of the concealment predictor.
	Order = 10

	minPitch = 16
	maxPitch = 144

	// pitchSpan is the history scanned by the pitch search
	pitchSpan = 2 * maxPitch
	excLen    = pitchSpan + 1
	speechLen = excLen + Order + 1

	// excitation samples kept beyond one pitch period
	pitchExtra = 2

	crossfadeLen  = FrameLen
	crossfadeStep = 819
)

// Class is the signal class that drives the synthesis and the fade-out.
type Class int16

const (
	Voiced       Class = 0
	Unvoiced     Class = 1
	Transient    Class = 3
	WeaklyVoiced Class = 5
)

func (c Class) String() string {
	switch c {
	case Voiced:
		return "voiced"
	case Unvoiced:
		return "unvoiced"
	case Transient:
		return "transient"
	case WeaklyVoiced:
		return "weakly-voiced"
	default:
		return "unknown"
	}
}

// State tells where the engine is in an erasure run.
type State int

const (
	// Good means the last frame was received.
	Good State = iota
	// FirstLoss means a loss started and its analysis is pending output.
	FirstLoss
	// ContinuedLoss means two or more frames in a row were lost.
	ContinuedLoss
)

func (s State) String() string {
	switch s {
	case Good:
		return "good"
	case FirstLoss:
		return "first-loss"
	case ContinuedLoss:
		return "continued-loss"
	default:
		return "unknown"
	}
}

// PostFilter is the spectral enhancer run on every output frame. It lags
// its input by postfilter.Delay samples. *postfilter.Filter implements it.
type PostFilter interface {
	Process(in, ref *[postfilter.FrameLen]int16, enable, analyze bool) [postfilter.FrameLen]int16
	Reset()
}

// Stats counts what the engine did since the last Reset.
type Stats struct {
	Frames      uint64
	LostFrames  uint64
	Erasures    uint64 // loss runs started
	Recoveries  uint64 // cross-fades back into received speech
	Resyncs     uint64 // recoveries that time-warped the extrapolation
	UnstableLPC uint64
}

// Engine is the per-stream concealment state. Use New.
type Engine struct {
	conceal bool
	post    PostFilter

	// lostRun counts the frames of the current erasure run
	lostRun int

	speech history
	dcFree [speechLen]int16
	exc    [excLen]int16

	a      [Order + 1]int16
	synMem [Order]int16

	class   Class
	pitch   int16
	maxCorr int16

	att            attenuation
	crossfadeCount int

	// delay holds the frame being output followed by the newest one
	delay [2 * FrameLen]int16

	stats Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithPostFilter runs pf over every output frame.
func WithPostFilter(pf PostFilter) Option {
	return func(e *Engine) { e.post = pf }
}

// WithoutConcealment turns the engine into a pass-through: received
// frames are copied, lost frames become silence and there is no
// look-ahead delay.
func WithoutConcealment() Option {
	return func(e *Engine) { e.conceal = false }
}

// New returns a reset engine.
func New(opts ...Option) *Engine {
	e := &Engine{conceal: true, speech: newHistory(speechLen)}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset()
	return e
}

// Reset returns the engine, and its post-filter, to the start-up state.
func (e *Engine) Reset() {
	*e = Engine{
		conceal:        e.conceal,
		post:           e.post,
		speech:         e.speech,
		class:          WeaklyVoiced,
		crossfadeCount: crossfadeLen,
	}
	e.speech.reset()
	e.att.reset()
	if e.post != nil {
		e.post.Reset()
	}
}

// Process takes the next frame, or a loss when lost is set or in is nil,
// and returns the output frame. With concealment on the output is one
// frame late.
func (e *Engine) Process(lost bool, in *[FrameLen]int16) [FrameLen]int16 {
	lost = lost || in == nil
	e.stats.Frames++
	if lost {
		e.stats.LostFrames++
	}
	if !e.conceal {
		return e.passThrough(lost, in)
	}

	analyze := true
	if e.lostRun == 1 {
		out := e.concealFirst()
		copy(e.delay[FrameLen:], out[:])
		e.speech.push(out[:])
		analyze = false
		e.postFilter(analyze)
		copy(e.delay[:FrameLen], e.delay[FrameLen:])
	}

	switch {
	case !lost:
		e.acceptGood(in)
	case e.lostRun == 0:
		e.beginLoss()
		e.lostRun = 1
		e.stats.Erasures++
	default:
		out := e.concealNext()
		e.lostRun++
		copy(e.delay[FrameLen:], out[:])
		e.speech.push(out[:])
	}

	if e.lostRun != 1 {
		e.postFilter(analyze)
	}
	var out [FrameLen]int16
	copy(out[:], e.delay[:FrameLen])
	if e.lostRun != 1 {
		copy(e.delay[:FrameLen], e.delay[FrameLen:])
	}
	return out
}

// acceptGood places a received frame in the delay line, cross-fading from
// the concealment when it ends an erasure run.
func (e *Engine) acceptGood(in *[FrameLen]int16) {
	cur := e.delay[FrameLen:]
	copy(cur, in[:])

	if e.crossfadeCount == 0 {
		ext := e.concealNext()

		var buf [2 * FrameLen]int16
		copy(buf[:FrameLen], e.delay[:FrameLen])
		copy(buf[FrameLen:], ext[:])
		if resynchronize(&buf, in, e.class) {
			e.stats.Resyncs++
		}
		copy(e.delay[:FrameLen], buf[:FrameLen])
		copy(e.speech.tail(FrameLen), buf[:FrameLen])

		for i := 0; i < crossfadeLen; i++ {
			w := crossfadeWeight(i)
			cur[i] = fp.Add(fp.Mult(in[i], w), fp.Mult(buf[FrameLen+i], fp.Sub(fp.MaxInt16, w)))
		}
		e.crossfadeCount = crossfadeLen
		e.stats.Recoveries++
	}

	e.speech.push(cur)
	e.lostRun = 0
}

// passThrough is Process with concealment switched off.
func (e *Engine) passThrough(lost bool, in *[FrameLen]int16) [FrameLen]int16 {
	var cur [FrameLen]int16
	if !lost {
		cur = *in
	}
	e.speech.push(cur[:])
	if e.post == nil {
		return cur
	}
	ref := e.postRef()
	return e.post.Process(&cur, &ref, true, true)
}

// postFilter filters the newest frame into the delay line, postfilter.Delay
// samples early so that the output frame comes out filtered.
func (e *Engine) postFilter(analyze bool) {
	if e.post == nil {
		return
	}
	var in [FrameLen]int16
	copy(in[:], e.delay[FrameLen:])
	ref := e.postRef()
	out := e.post.Process(&in, &ref, true, analyze)
	copy(e.delay[FrameLen-postfilter.Delay:], out[:])
}

// postRef is the unfiltered history aligned with the post-filter output.
func (e *Engine) postRef() [FrameLen]int16 {
	var ref [FrameLen]int16
	copy(ref[:], e.speech.tail(FrameLen+postfilter.Delay))
	return ref
}

func crossfadeWeight(i int) int16 {
	return int16(crossfadeStep * (i + 1))
}

// State reports where the engine is in an erasure run.
func (e *Engine) State() State {
	switch {
	case e.lostRun == 0:
		return Good
	case e.lostRun == 1:
		return FirstLoss
	default:
		return ContinuedLoss
	}
}

// Class is the class of the last analyzed loss.
func (e *Engine) Class() Class { return e.class }

// Pitch is the repetition period used by the synthesis, in samples.
func (e *Engine) Pitch() int { return int(e.pitch) }

// Weight is the current fade-out gain in Q15.
func (e *Engine) Weight() int16 { return e.att.weight }

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats { return e.stats }
