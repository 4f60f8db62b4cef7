package plc

import (
	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/lpc"
)

const (
	// pole of the DC removal filter, 0.97
	dcPole = 31784

	decimation   = 4
	dsSpan       = pitchSpan / decimation
	dsMaxLag     = maxPitch / decimation
	dsMinLag     = minPitch / decimation
	dsDefaultLag = maxPitch / 2 / decimation

	// perceptual weighting of the decimated signal, 0.94 and 0.94^2
	weightGamma  = 30802
	weightGamma2 = 28954

	// Q15 correlation thresholds
	voicedCorr   = 22936
	doublingCorr = 27850
	boostLimit   = 29126
	weakCorr     = 8192

	// decimated energy above which the full-rate search works on halved samples
	pitchOverflow = 0x01000000

	classifySpan      = 2 * FrameLen
	unvoicedCrossings = 20
	maxTransientPitch = 40
	pulseSearch       = 5
)

// removeDC high-pass filters the speech history into dcFree:
// y[n] = x[n] - x[n-1] + 0.97*y[n-1].
func (e *Engine) removeDC() {
	x := e.speech.buf
	e.dcFree[0] = x[0]
	for i := 1; i < speechLen; i++ {
		e.dcFree[i] = fp.Add(x[i], fp.Sub(fp.MultR(e.dcFree[i-1], dcPole), x[i-1]))
	}
}

// analyzeFilter fits the predictor to the newest window of dcFree. An
// unstable fit keeps the previous filter.
func (e *Engine) analyzeFilter() {
	r := lpc.Autocorr(e.dcFree[speechLen-lpc.WindowLen:], lpc.Window[:], Order)
	lpc.LagWindow(r, lpc.LagConcealment[:Order])

	res := lpc.Levinson(r, Order)
	if !res.Stable {
		e.stats.UnstableLPC++
		return
	}
	copy(e.a[:], res.A)
}

// openLoopPitch estimates the pitch lag over the last pitchSpan samples of
// buf together with its normalized correlation. The search runs on a 4:1
// decimated, perceptually weighted signal and is refined at full rate.
// Loud input is halved in place before the refinement.
func openLoopPitch(buf []int16) (lag, maxCorr int16) {
	base := len(buf) - pitchSpan
	sig := buf[base:]

	var ds [dsSpan]int16
	for i, k := decimation-1, 0; k < dsSpan; i, k = i+decimation, k+1 {
		acc := fp.LMult0(buf[base+i], lpc.DecimationFilter[0])
		for j := 1; j < len(lpc.DecimationFilter); j++ {
			acc = fp.LMac0(acc, buf[base+i-j], lpc.DecimationFilter[j])
		}
		ds[k] = fp.Round(acc)
	}
	w := weightedSignal(&ds)

	last := dsSpan - 1
	first := dsMaxLag + 1

	ener1 := int32(1)
	for j := last; j >= first; j-- {
		ener1 = fp.LMac0(ener1, w[j], w[j])
	}
	ne1 := fp.NormL(ener1)
	ener2 := fp.LMsu0(ener1, w[last], w[last])

	// a period holds at least one zero crossing
	zcr := 0
	for j := 2; zcr == 0 && j < last; j++ {
		p := last - (j - 2)
		if w[p]^w[p-1] < 0 {
			zcr = j
		}
	}

	ind, ind2 := int16(dsDefaultLag), int16(0)
	valid := false
	for i := 1; i < dsMaxLag; i++ {
		ind2++

		var corr int32
		for j := last; j >= first; j-- {
			corr = fp.LMac0(corr, w[j], w[j-i])
		}
		ener2 = fp.LMac0(ener2, w[first-i], w[first-i])
		co := normalizedCorr(corr, ener1, ener2, ne1)
		if ener2 < fp.MaxInt32 {
			ener2 = fp.LMsu0(ener2, w[last-i], w[last-i])
		}

		// candidates start after the first positive lobe
		if co < 0 {
			valid = true
		}
		if i < zcr {
			valid = false
		}
		if !valid {
			continue
		}

		// favor the lag already found over its multiples
		if ind2 == ind || ind2 == fp.Shl(ind, 1) {
			if maxCorr > doublingCorr {
				maxCorr = fp.MaxInt16
			}
			if maxCorr < boostLimit {
				maxCorr = fp.Add(maxCorr, fp.Shr(maxCorr, 3))
			}
		}
		if co > maxCorr && i >= dsMinLag {
			maxCorr = co
			ind = int16(i)
			ind2 = 1
		}
	}

	lag = fp.Shl(ind, 2)
	il := int(lag)

	if ener1 > pitchOverflow {
		for i := 1; i < pitchSpan; i++ {
			sig[i] = fp.Shr(sig[i], 1)
		}
	}

	start := max(il-2, minPitch)
	end := il + 2
	beg := pitchSpan - il
	endLast := pitchSpan - 1

	ener1 = fp.LMac0(1, sig[endLast], sig[endLast])
	ener2 = fp.LMac0(1, sig[endLast-start], sig[endLast-start])
	j := endLast - 1
	for ; j > beg; j-- {
		ener1 = fp.LMac0(ener1, sig[j], sig[j])
		ener2 = fp.LMac0(ener2, sig[j-start], sig[j-start])
	}
	ener1 = fp.LMac0(ener1, sig[j], sig[j])
	ne1 = fp.NormL(ener1)

	for i := start; i <= end; i++ {
		ener2 = fp.LMac0(ener2, sig[beg-i], sig[beg-i])

		var corr int32
		for j := endLast; j >= beg; j-- {
			corr = fp.LMac0(corr, sig[j], sig[j-i])
		}
		co := normalizedCorr(corr, ener1, ener2, ne1)
		if co > maxCorr {
			lag = int16(i)
		}
		maxCorr = fp.Max(co, maxCorr)

		if ener2 < fp.MaxInt32 {
			ener2 = fp.LMsu0(ener2, sig[endLast-i], sig[endLast-i])
		}
	}

	// short lags of barely periodic signals repeat too fast
	if maxCorr < weakCorr && lag < 32 {
		lag = fp.Shl(lag, 1)
	}
	return lag, maxCorr
}

// weightedSignal filters the decimated signal through a bandwidth-expanded
// second-order predictor.
func weightedSignal(ds *[dsSpan]int16) [dsSpan]int16 {
	a := []int16{lpc.CoeffScale.One(), 0, 0}
	r := lpc.Autocorr(ds[:], lpc.Window[lpc.WindowLen-dsSpan:], 2)
	lpc.LagWindow(r, lpc.LagConcealment[:2])
	if res := lpc.Levinson(r, 2); res.Stable {
		a = res.A
	}
	a1 := fp.Round(fp.LMult(a[1], weightGamma))
	a2 := fp.Round(fp.LMult(a[2], weightGamma2))

	var w [dsSpan]int16
	w[0] = ds[0]
	w[1] = fp.Add(ds[1], fp.Round(fp.LShl(fp.LMult(a1, ds[0]), 3)))
	for i := 2; i < dsSpan; i++ {
		acc := fp.LMac(fp.LMult(a1, ds[i-1]), a2, ds[i-2])
		w[i] = fp.Add(ds[i], fp.Round(fp.LShl(acc, 3)))
	}
	return w
}

// normalizedCorr returns corr/max(e1, e2) in Q15 after normalizing all
// three by the same shift, at most n1. Non-positive correlations come back
// unscaled.
func normalizedCorr(corr, e1, e2 int32, n1 int16) int16 {
	n := fp.Min(n1, fp.NormL(e2))
	em := fp.Max(fp.Round(fp.LShl(e1, n)), fp.Round(fp.LShl(e2, n)))
	co := fp.Round(fp.LShl(corr, n))
	if co > 0 {
		co = fp.DivS(co, em)
	}
	return co
}

// classify sets the class of the loss from the pitch correlation and the
// zero-crossing rate, and conditions the residual of the last period for
// repetition. It may change the pitch.
func (e *Engine) classify() Class {
	x := e.dcFree[speechLen-classifySpan-1:]
	zcr := 0
	for i := 1; i <= classifySpan; i++ {
		if x[i] <= 0 && x[i-1] > 0 {
			zcr++
		}
	}

	class := WeaklyVoiced
	if e.maxCorr > voicedCorr {
		class = Voiced
	}
	if zcr >= unvoicedCrossings {
		class = Unvoiced
		if e.pitch < 32 {
			e.pitch = fp.Shl(e.pitch, 1)
		}
	}

	transients := 0
	switch class {
	case WeaklyVoiced:
		transients = e.limitResidual()
	case Unvoiced:
		e.smoothResidual()
	}
	if transients > 0 {
		class = Transient
		e.pitch = fp.Min(e.pitch, maxTransientPitch)
	}

	if class == Voiced {
		e.retunePitch()
	}
	return class
}

// limitResidual clips every sample of the last period to the peak around
// the same position one period earlier and returns how many samples were
// at least eight times that peak.
func (e *Engine) limitResidual() int {
	t0 := int(e.pitch)
	last := excLen - t0
	prev := last - t0 - 2

	var mag [maxPitch + 4]int16
	for i := 0; i < t0+4; i++ {
		mag[i] = fp.Abs(e.exc[prev+i])
	}

	n := 0
	for i := 0; i < t0; i++ {
		peak := fp.Max(fp.Max(mag[i], mag[i+1]), fp.Max(mag[i+2], mag[i+3]))
		peak = fp.Max(mag[i+4], peak)

		v := e.exc[last+i]
		if fp.Abs(v) <= peak {
			continue
		}
		if fp.Shr(fp.Abs(v), 3) >= peak {
			n++
		}
		if v < 0 {
			e.exc[last+i] = fp.Negate(peak)
		} else {
			e.exc[last+i] = peak
		}
	}
	return n
}

// smoothResidual divides by four the samples of the last period above 2.5
// times the mean magnitude of the last 10 ms.
func (e *Engine) smoothResidual() {
	var sum int32
	for _, v := range e.exc[excLen-classifySpan:] {
		sum = fp.LMac0(sum, fp.Abs(v), 1)
	}
	limit := fp.ExtractL(fp.LShr(sum, 5))

	for i := excLen - int(e.pitch); i < excLen; i++ {
		if fp.Abs(e.exc[i]) > limit {
			e.exc[i] = fp.Shr(e.exc[i], 2)
		}
	}
}

// retunePitch looks for a second glottal pulse of the same sign within
// the last period. When one is found the pitch was decreasing, and the
// distance between the pulses, at least minPitch, becomes the new period.
func (e *Engine) retunePitch() {
	t0 := int(e.pitch)
	end := excLen - 1

	maxPulse := int16(-1)
	pulse := 0
	var cumul int32
	for i := 0; i < t0; i++ {
		v := fp.Abs(e.exc[end-i])
		if v > maxPulse {
			pulse = i
		}
		maxPulse = fp.Max(v, maxPulse)
		cumul = fp.LMac0(cumul, v, 1)
	}

	// only a pulse over four times the mean magnitude counts
	if cumul >= fp.LShr(fp.LMult0(maxPulse, e.pitch), 2) {
		return
	}

	maxPulse2 := int16(-1)
	pulse2 := 0
	search := func(from, to int) {
		for i := from; i < to; i++ {
			v := fp.Abs(e.exc[end-i])
			if v > maxPulse2 {
				pulse2 = i
			}
			maxPulse2 = fp.Max(v, maxPulse2)
		}
	}
	if stop := pulse - (t0 - pulseSearch); stop >= 0 {
		search(0, stop)
	}
	if pulse < pulseSearch {
		search(t0-pulseSearch+pulse, t0)
	}

	if maxPulse2 > fp.Shr(maxPulse, 1) && (e.exc[end-pulse] < 0) == (e.exc[end-pulse2] < 0) {
		// the period never drops below minPitch
		e.pitch = max(fp.Abs(int16(pulse-pulse2)), minPitch)
	}
}
