// Package lpc is the linear-prediction toolkit shared by the concealment
// engine and the noise-shaping encoder: windowed autocorrelation, lag
// windowing, Levinson-Durbin recursion, bandwidth expansion and the
// analysis/synthesis filters. Autocorrelations are kept in the
// double-precision format of package fixedpoint.
package lpc

import fp "g711enhance/pkg/fixedpoint"

// MaxOrder bounds every predictor handled by this package.
const MaxOrder = 16

// Autocorr windows x with win and returns r[0..order], normalized so that
// r[0] uses the full 32-bit range. When the zero-lag energy saturates, the
// windowed samples are divided by 4 and the energy recomputed. len(win)
// must be at least len(x).
func Autocorr(x, win []int16, order int) []fp.DPF {
	n := len(x)
	y := make([]int16, n)
	for i := range y {
		y[i] = fp.MultR(x[i], win[i])
	}

	var sum int32
	for {
		// the 1 keeps an all-zero block from producing r[0] == 0
		acc := int64(1)
		for _, v := range y {
			acc += 2 * int64(v) * int64(v)
		}
		if acc <= int64(fp.MaxInt32) {
			sum = int32(acc)
			break
		}
		for i := range y {
			y[i] = fp.Shr(y[i], 2)
		}
	}

	r := make([]fp.DPF, order+1)
	norm := fp.NormL(sum)
	r[0] = fp.LExtract(fp.LShl(sum, norm))

	for i := 1; i <= order; i++ {
		s := fp.LMult(y[0], y[i])
		for j := 1; j < n-i; j++ {
			s = fp.LMac(s, y[j], y[j+i])
		}
		r[i] = fp.LExtract(fp.LShl(s, norm))
	}
	return r
}

// LagWindow multiplies r[1..] by the lag window coefficients lag[0..].
func LagWindow(r []fp.DPF, lag []fp.DPF) {
	for i := 1; i < len(r); i++ {
		r[i] = fp.LExtract(fp.Mpy32(r[i], lag[i-1]))
	}
}

// NoiseShapingWindowLen is the block length analyzed by AutocorrNoiseShaping.
const NoiseShapingWindowLen = 80

// NoiseShapingOrder is the order of the noise-shaping predictor.
const NoiseShapingOrder = 4

// AutocorrNoiseShaping computes the lag-windowed autocorrelation used to
// derive the encoder's noise-shaping filter from the last 80 decoded
// samples. The block is pre-emphasized by a zero-crossing dependent factor
// (harmonic signals more than noisy ones) and a small decaying noise floor
// is added to every lag. It also returns the normalization shift of r[0],
// large values of which signal a near-silent block.
func AutocorrNoiseShaping(x *[NoiseShapingWindowLen]int16) ([]fp.DPF, int16) {
	const n = NoiseShapingWindowLen

	zcross := int16(n - 1)
	for i := 1; i < n; i++ {
		if x[i-1]^x[i] < 0 {
			zcross--
		}
	}
	zcross = fp.Add(12543, fp.Shl(zcross, 8))

	var y [n]int16
	for i := 1; i < n; i++ {
		y[i] = fp.MultR(noiseShapingWindow[i], fp.Sub(x[i], fp.MultR(zcross, x[i-1])))
	}

	alpha := int16(100)
	sum := fp.LMult(alpha, 100)
	for i := 1; i < n; i++ {
		sum = fp.LMac(sum, y[i], y[i])
	}

	var shift int16
	if sum == fp.MaxInt32 {
		shift = 2
		alpha = 25
		sum = fp.LMult(alpha, 25)
		for i := 1; i < n; i++ {
			y[i] = fp.Shr(y[i], 2)
			sum = fp.LMac(sum, y[i], y[i])
		}
	}
	alpha = fp.Mult(alpha, 31130) // 0.95

	r := make([]fp.DPF, NoiseShapingOrder+1)
	norm := fp.NormL(sum)
	r[0] = fp.LExtract(fp.LShl(sum, norm))

	for i := 1; i <= NoiseShapingOrder; i++ {
		s := fp.LMult(alpha, fp.Shr(100, shift))
		alpha = fp.Mult(alpha, 31130)
		for j := 1; j < n-i; j++ {
			s = fp.LMac(s, y[j], y[j+i])
		}
		r[i] = fp.LExtract(fp.LShl(s, norm))
	}

	LagWindow(r, LagNoiseShaping[:])
	return r, norm
}
