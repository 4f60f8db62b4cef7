package postfilter

import (
	fp "g711enhance/pkg/fixedpoint"
	"g711enhance/pkg/spectral"
)

// Noise model of the log-law quantizer, in the Q31 energy domain of the
// last frame (sum of 2*x^2 over 40 samples). Values follow the ITU-T G.711
// Appendix III post-filter (UNIF_LOG_THRESH, DEC_ON_50DB, SILENCE_THRESH
// and the uniform-segment noise power).
const (
	// above logThreshold the quantizer runs in its logarithmic segments
	// and the noise tracks the signal at a constant SQNR.
	// Q31, 0.005 (-23 dB).
	logThreshold = 10737418
	// below floorThreshold the signal is at most 50 dB over the step and
	// the noise estimate follows the signal 15 dB down.
	// Q31, 1.0057e-5 (-50 dB).
	floorThreshold = 21598
	// frames at or below silenceThreshold get an extra 12 dB of attenuation.
	// Q31, 1.19e-6 (-59 dB).
	silenceThreshold = 2560

	// uniformNoise is the noise power of the uniform segments,
	// 1/((A/(1+ln A))*3*2^16) = 1/3145728 in Q31.
	uniformNoise = 683
)

var (
	// constant-SQNR factor of the log segments, about -42 dB (Q31 136600,
	// NOISE_A_LAW_64K)
	logNoiseFactor = fp.DPF{Hi: 2, Lo: 2764}
	// -15 dB (Q31 67909396)
	lowLevelFactor = fp.DPF{Hi: 1036, Lo: 7050}
)

const (
	// smoothingComplement is 1-beta of the decision-directed estimator,
	// beta = 0.98. Q15, 0.02 (BETA16M1).
	smoothingComplement = 655
	// minGain bounds the Wiener gain from below. Q15, 0.2 (W16_MIN).
	minGain = 6554
)

// gainState is the per-bin memory of the decision-directed estimator.
type gainState struct {
	// smoothed is the filtered power of the previous analysis, same scale
	// as the current power spectrum
	smoothed [spectral.Bins]int32
}

// noisePower estimates the quantization noise power of the frame from its
// energy. The result is Q31, before alignment with the spectrum scale.
func noisePower(frameEnergy int32) int32 {
	switch {
	case frameEnergy > logThreshold:
		return fp.Mpy32(fp.LExtract(frameEnergy), logNoiseFactor)
	case frameEnergy < floorThreshold:
		return fp.Mpy32(fp.LExtract(frameEnergy), lowLevelFactor)
	default:
		return uniformNoise
	}
}

// powerSpectrum returns |X[k]|^2 for k = 0..32 from a packed spectrum.
func powerSpectrum(X *[spectral.Size]int16) [spectral.Bins]int32 {
	var p [spectral.Bins]int32
	p[0] = fp.LMult0(X[0], X[0])
	p[spectral.Bins-1] = fp.LMult0(X[spectral.Size/2], X[spectral.Size/2])
	for k := 1; k < spectral.Size/2; k++ {
		p[k] = fp.LMac0(fp.LMult0(X[k], X[k]), X[spectral.Size-k], X[spectral.Size-k])
	}
	return p
}

// ratio returns num/(num+noise) in Q15, both terms normalized together.
// When the normalized denominator is not positive, fallback is returned.
func ratio(num, noise int32, fallback func(norm int16) int16) int16 {
	den := fp.LAdd(num, noise)
	n := fp.NormL(den)
	d := fp.ExtractH(fp.LShl(den, n))
	if d <= 0 {
		return fallback(n)
	}
	return fp.DivS(fp.ExtractH(fp.LShl(num, n)), d)
}

// computeGains derives the Wiener gain curve of the frame from its packed
// spectrum X, the analysis shift and the energy of the newest 40 samples,
// and updates the smoothed power estimate.
func (g *gainState) computeGains(X *[spectral.Size]int16, shift int16, frameEnergy int32) [spectral.Bins]int16 {
	power := powerSpectrum(X)

	// align the noise estimate with the spectrum scale, Q(30+2*(shift-4))
	noise := fp.LShl(noisePower(frameEnergy), 2*shift-9)

	var W [spectral.Bins]int16

	// provisional gain from the a priori SNR
	for k := range W {
		post := fp.LSub(power[k], noise)
		if post < 0 {
			post = 0
		}
		diff := fp.LExtract(fp.LSub(g.smoothed[k], post))
		prio := fp.LSub(g.smoothed[k], fp.Mpy32x16(diff, smoothingComplement))

		W[k] = ratio(prio, noise, func(int16) int16 { return fp.MaxInt16 })
	}

	// refined gain from the provisionally filtered power
	for k := range W {
		filtered := fp.Mpy32(fp.LExtract(fp.LMult(W[k], W[k])), fp.LExtract(power[k]))
		W[k] = fp.Max(ratio(filtered, noise, func(n int16) int16 { return n }), minGain)
	}

	if frameEnergy <= silenceThreshold {
		for k := range W {
			W[k] = fp.Shr(W[k], 2)
		}
	}

	for k := range g.smoothed {
		g.smoothed[k] = fp.Mpy32(fp.LExtract(fp.LMult(W[k], W[k])), fp.LExtract(power[k]))
	}
	return W
}

// impulseResponse turns a zero-phase gain curve into the symmetric
// taps-long FIR filter, truncated by tapWindow.
func impulseResponse(W *[spectral.Bins]int16) [taps]int16 {
	w := spectral.InverseSymmetric(W)

	var h [taps]int16
	for k := 0; k <= halfTaps; k++ {
		v := fp.Mult(w[k], tapWindow[halfTaps-k])
		h[halfTaps-k] = v
		h[halfTaps+k] = v
	}
	return h
}
