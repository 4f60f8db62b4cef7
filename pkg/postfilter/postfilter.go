// Package postfilter reduces the quantization noise of log-law decoded
// speech with a short Wiener filter designed per frame in the frequency
// domain and applied in the time domain.
//
// The filter is zero-phase with 33 taps, so the filtered signal lags the
// input by Delay samples. Callers that need a fixed output delay feed the
// filter ahead of time; the concealment engine does exactly that with its
// one-frame delay line.
package postfilter

import (
	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/spectral"
)

const (
	// FrameLen is the number of samples handled per call.
	FrameLen = 40
	// Delay is the lag of the filtered signal behind the input.
	Delay = halfTaps

	windowLen    = spectral.Size
	taps         = 2*halfTaps + 1
	halfTaps     = 16
	crossfadeLen = 7

	// outputs at or below this magnitude are not clamped
	clampFloor = 24
)

// Filter is the per-stream post-filter state. The zero value is not
// usable; call New.
type Filter struct {
	// sliding analysis window, newest samples last
	x     [windowLen]int16
	shift int16
	spec  [windowLen]int16

	gain gainState

	ring  ring
	h     [taps]int16
	hPrev [taps]int16
}

// New returns a reset filter.
func New() *Filter {
	f := &Filter{}
	f.Reset()
	return f
}

// Reset clears all history. The filter starts out as all-zero taps.
func (f *Filter) Reset() {
	*f = Filter{}
}

// Process filters one frame.
//
// in is the newest frame. ref holds the unfiltered samples aligned with
// the output, that is in delayed by Delay samples; each output sample
// larger than a few LSBs is clamped to within one quantization step of
// its ref sample. in and ref may point into the same buffer.
//
// With enable false the filter is bypassed and in is returned unchanged.
// With analyze false the frame only enters the history and is filtered
// with the previous filter.
func (f *Filter) Process(in, ref *[FrameLen]int16, enable, analyze bool) [FrameLen]int16 {
	if !enable {
		return *in
	}

	copy(f.x[windowLen-FrameLen:], in[:])
	if analyze {
		f.analyze()
		W := f.gain.computeGains(&f.spec, f.shift, f.frameEnergy())
		f.h = impulseResponse(&W)
	}

	out := f.synthesize()

	for i := range out {
		if fp.Abs(out[i]) > clampFloor {
			step := maxCorrection[fp.Norm(ref[i])]
			out[i] = fp.Max(out[i], fp.Sub(ref[i], step))
			out[i] = fp.Min(out[i], fp.Add(ref[i], step))
		}
	}
	return out
}

// analyze normalizes and windows the analysis buffer and transforms it.
func (f *Filter) analyze() {
	peak := int16(1)
	for _, v := range f.x {
		peak |= fp.Abs(v)
	}
	f.shift = 0
	for peak&0x4000 == 0 {
		f.shift++
		peak = fp.Shl(peak, 1)
	}

	var xw [windowLen]int16
	for i, v := range f.x {
		xw[i] = fp.Mult(fp.Shl(v, f.shift), analysisWindow[i])
	}
	f.spec = spectral.Forward(&xw)
}

// frameEnergy is the Q31 energy of the newest frame.
func (f *Filter) frameEnergy() int32 {
	var e int32
	for _, v := range f.x[windowLen-FrameLen:] {
		e = fp.LMac(e, v, v)
	}
	return e
}

// synthesize runs the newest frame through the current filter, fading
// from the previous filter over the first samples, then slides the
// analysis window by one frame.
func (f *Filter) synthesize() [FrameLen]int16 {
	var out [FrameLen]int16
	for i := range out {
		f.ring.push(f.x[windowLen-FrameLen+i])
		recent := f.ring.window()

		out[i] = convolve(&f.h, recent)
		if i < crossfadeLen {
			old := convolve(&f.hPrev, recent)
			out[i] = fp.Add(fp.Mult(old, fadeOut[i]), fp.Mult(out[i], fadeIn[i]))
		}
	}

	copy(f.x[:], f.x[FrameLen:])
	f.hPrev = f.h
	return out
}

// convolve returns sum h[k]*x[n-k] over the taps most recent samples,
// given oldest first.
func convolve(h *[taps]int16, recent []int16) int16 {
	var acc int32
	for k := range h {
		acc = fp.LMac(acc, recent[taps-1-k], h[k])
	}
	return fp.Round(acc)
}
