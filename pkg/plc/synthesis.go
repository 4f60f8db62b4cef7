package plc

import (
	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/lpc"
)

// filterDecay[i-1] is 0.99^i in Q15, applied to a[i] after the first
// concealed frame.
var filterDecay = [Order]int16{32440, 32116, 31795, 31477, 31162, 30850, 30542, 30236, 29934, 29635}

// Fade-out ramp, in samples counted by attenuation.count.
const (
	rampSecond = 2 * FrameLen
	rampThird  = 4 * FrameLen
	rampEnd    = 12 * FrameLen

	// weight below which the last slope of a long voiced loss is redone
	lateSlopeWeight = 30400
)

// attenuation is the fade-out applied to concealed samples. The weight
// only ever decreases until the next loss starts.
type attenuation struct {
	count  int
	inc    int
	slope1 int16
	slope2 int16
	slope3 int16
	weight int16
	// rho is an extra slope derived from the energy decay before the loss,
	// halved every frame
	rho int16
}

func (att *attenuation) reset() {
	*att = attenuation{weight: fp.MaxInt16}
	att.configure(WeaklyVoiced)
}

// configure picks the ramp for class: about 15 ms for transients and
// 60 ms otherwise.
func (att *attenuation) configure(class Class) {
	if class == Transient {
		att.inc = 4
		att.slope1, att.slope2, att.slope3 = 409, 818, 820
		return
	}
	att.inc = 1
	att.slope1, att.slope2, att.slope3 = 10, 10, 75
}

// fadeLinear lowers the weight by a constant step per sample, or by rho
// when that is steeper.
func (att *attenuation) fadeLinear(x *[FrameLen]int16) {
	step := att.slope1
	if att.rho > step {
		step = att.rho
	}
	for i := range x {
		att.weight = fp.Max(fp.Sub(att.weight, step), 0)
		x[i] = fp.MultR(att.weight, x[i])
	}
	att.rho = fp.Shr(att.rho, 1)
	att.count += att.inc * FrameLen
}

// fade applies the three-slope ramp.
func (att *attenuation) fade(x *[FrameLen]int16, lostRun int, class Class) {
	if lostRun == 5 && att.weight < lateSlopeWeight && (class == Voiced || class == WeaklyVoiced) {
		att.slope3 = fp.Max(fp.Sub(fp.Mult(att.weight, 102), 20), 0)
	}
	for i := range x {
		att.step()
		x[i] = fp.MultR(att.weight, x[i])
		att.count += att.inc
	}
}

func (att *attenuation) step() {
	w := fp.Sub(att.weight, att.slope1)
	if att.count >= rampSecond {
		w = fp.Sub(w, att.slope2)
	}
	if att.count >= rampThird {
		w = fp.Sub(w, att.slope3)
	}
	if att.count >= rampEnd || w < 0 {
		w = 0
	}
	if w == 0 {
		att.count = rampEnd
	}
	att.weight = w
}

// beginLoss analyzes the history when a loss starts. No samples are
// produced until the next call.
func (e *Engine) beginLoss() {
	e.crossfadeCount = 0
	e.att.count = 0
	e.att.weight = fp.MaxInt16

	e.removeDC()
	e.analyzeFilter()
	e.pitch, e.maxCorr = openLoopPitch(e.dcFree[:])
}

// concealFirst synthesizes the first lost frame.
func (e *Engine) concealFirst() [FrameLen]int16 {
	copy(e.exc[:], lpc.Residual(e.a[:], e.speech.tail(excLen+Order)))
	copy(e.synMem[:], e.speech.buf[excLen:excLen+Order])

	e.class = e.classify()
	e.att.rho = e.energyDecay()
	e.att.configure(e.class)

	out := e.synthesize()
	for i := 1; i <= Order; i++ {
		e.a[i] = fp.Round(fp.LMult(e.a[i], filterDecay[i-1]))
	}
	e.att.fadeLinear(&out)
	return out
}

// concealNext synthesizes a further lost frame, or the extrapolation
// cross-faded into the first good one.
func (e *Engine) concealNext() [FrameLen]int16 {
	out := e.synthesize()
	if e.lostRun <= 1 {
		e.att.fadeLinear(&out)
	} else {
		e.att.fade(&out, e.lostRun, e.class)
	}
	return out
}

// energyDecay returns the per-sample fade step matching the energy drop
// between the last two periods before the loss, or 0 when the level was
// steady or low.
func (e *Engine) energyDecay() int16 {
	t0 := int(e.pitch)
	h := e.speech.buf
	e1 := fp.LAdd(sumSquares(h[speechLen-t0:]), 1)
	e2 := fp.LAdd(sumSquares(h[speechLen-2*t0:speechLen-t0]), 1)

	if e1 >= e2 || fp.LShr(e2, 10) <= fp.LMult(e.pitch, 360) {
		return 0
	}
	rho := fp.Sub(fp.MaxInt16, fp.SqrtQ15(energyRatio(e1, e2)))
	return fp.Mult(rho, fp.DivS(1, e.pitch))
}

// synthesize repeats the last period of the excitation through the LPC
// synthesis filter. Classes other than Voiced alternate the lag by one
// sample around an odd period.
func (e *Engine) synthesize() [FrameLen]int16 {
	keep := int(e.pitch) + pitchExtra

	var buf [maxPitch + pitchExtra + FrameLen]int16
	copy(buf[:keep], e.exc[excLen-keep:])

	jitter := int16(e.class) & 1
	e.pitch |= jitter
	t0 := int(e.pitch)
	for n := keep; n < keep+FrameLen; n++ {
		buf[n] = buf[n+int(jitter)-t0]
		jitter = -jitter
	}
	exc := buf[keep : keep+FrameLen]

	var out [FrameLen]int16
	copy(out[:], lpc.Synthesize(e.a[:], exc, e.synMem[:]))
	e.storeExcitation(exc)
	return out
}

// storeExcitation keeps the newest pitch+pitchExtra excitation samples at
// the end of the excitation memory.
func (e *Engine) storeExcitation(exc []int16) {
	lag := int(e.pitch) + pitchExtra
	tail := e.exc[excLen-lag:]
	if lag > len(exc) {
		copy(tail, tail[len(exc):])
		copy(tail[lag-len(exc):], exc)
		return
	}
	copy(tail, exc[len(exc)-lag:])
}

func sumSquares(x []int16) int32 {
	var sum int32
	for _, v := range x {
		sum = fp.LMac0(sum, v, v)
	}
	return sum
}
