package plc

import fp "g711enhance/pkg/fixedpoint"

const (
	// lags searched on either side when aligning the extrapolation
	resyncRange = 5
	resyncLen   = FrameLen - resyncRange

	// minimum energy ratio (0.5) and normalized correlation (0.7, Q30)
	// for time-warping a voiced extrapolation
	resyncRatio = 16384
	resyncCorr  = 751619277

	// 1/(2*FrameLen-1) in Q31
	invWarpSpan = 27183337
)

// energies holds two energies normalized for division. lo is the smaller.
type energies struct {
	lo, hi         int32
	loHigh, hiHigh int16
	// exp is the sum of both normalization shifts
	exp   int16
	ratio int16
}

// compareEnergies returns min(e1, e2)/max(e1, e2) in Q15 along with the
// normalized operands. Both energies must be positive.
func compareEnergies(e1, e2 int32) energies {
	lo, hi := min(e1, e2), max(e1, e2)
	n1, n2 := fp.NormL(lo), fp.NormL(hi)

	p := energies{exp: n1 + n2}
	p.lo = fp.LShl(lo, n1)
	p.hi = fp.LShl(hi, n2)
	p.loHigh = fp.Round(p.lo)
	p.hiHigh = fp.Round(p.hi)

	// keep the numerator below the denominator
	adj := fp.Shr(fp.ExtractH(fp.LSub(p.hi, p.lo)), 15)
	num := fp.Round(fp.LShl(p.lo, adj))
	p.ratio = fp.Shr(fp.DivS(num, p.hiHigh), n1-n2+adj)
	return p
}

// energyRatio is the Q15 ratio of the smaller to the larger energy.
func energyRatio(e1, e2 int32) int16 {
	return compareEnergies(fp.LAdd(e1, 1), fp.LAdd(e2, 1)).ratio
}

// resynchronize prepares buf, the frame about to be output followed by its
// extrapolation, for the cross-fade into the received frame good. A voiced
// extrapolation that correlates well with good is time-warped onto it; an
// extrapolation louder than good is faded down. It reports whether a warp
// took place.
func resynchronize(buf *[2 * FrameLen]int16, good *[FrameLen]int16, class Class) bool {
	best := 0
	var cmax int32
	for j := -resyncRange; j <= resyncRange; j++ {
		seg := buf[FrameLen+j:]
		c := fp.LMult(seg[0], good[0])
		for i := 1; i < resyncLen; i++ {
			c = fp.LMac(c, seg[i], good[i])
		}
		if c > cmax {
			best = j
		}
		cmax = max(c, cmax)
	}

	e1 := fp.LAdd(sumSquares(buf[FrameLen+best:FrameLen+best+resyncLen]), 1)
	e2 := fp.LAdd(sumSquares(good[:resyncLen]), 1)
	p := compareEnergies(e1, e2)

	warped := false
	if class == Voiced && p.ratio > resyncRatio && p.correlation(cmax) > resyncCorr {
		warp(buf, -best)
		warped = best != 0
	}

	if e1 > e2 {
		step := fp.Mult(fp.SqrtQ15(fp.Sub(fp.MaxInt16, p.ratio)), 409)
		g := fp.Sub(fp.MaxInt16, step)
		for i := range buf {
			buf[i] = fp.Mult(buf[i], g)
			g = fp.Sub(g, step)
		}
	}
	return warped
}

// correlation returns c/sqrt(e1*e2) in Q30.
func (p energies) correlation(c int32) int32 {
	// use the 32-bit form of whichever operand lost more to rounding
	d1 := fp.LAbs(fp.LMac(p.lo, p.loHigh, -32768))
	d2 := fp.LAbs(fp.LMac(p.hi, p.hiHigh, -32768))
	var prod int32
	if fp.LSub(d2, d1) > 0 {
		prod = fp.LMls(p.hi, p.loHigh)
	} else {
		prod = fp.LMls(p.lo, p.hiHigh)
	}

	n := fp.NormL(prod)
	prod = fp.LShl(prod, n)
	exp := p.exp + n
	odd := exp & 1
	prod, exp = fp.IsqrtN(prod, exp)
	exp += odd

	n = fp.NormL(c)
	c = fp.LShl(c, n)
	return fp.LShr(fp.LMls(prod, fp.Round(c)), exp+n)
}

// warp resamples v by linear interpolation with a step of
// (len(v)-1-n)/(len(v)-1), stretching it for n > 0 and compressing it for
// n < 0. Compression leaves the last -n samples at zero.
func warp(v *[2 * FrameLen]int16, n int) {
	if n == 0 {
		return
	}
	const span = 2 * FrameLen

	delta := fp.LMls(invWarpSpan, int16(span-1-n))
	pos := delta
	length := span - max(-n, 0)

	var out [span]int16
	out[0] = v[0]
	for i := 1; i < length; i++ {
		ip := int(fp.ExtractH(pos))
		frac := fp.Lshr(fp.ExtractL(pos), 1)

		acc := fp.LMult(frac, v[ip+1])
		acc = fp.LMsu(acc, frac, v[ip])
		out[i] = fp.MsuR(acc, -32768, v[ip])
		pos = fp.LAdd(pos, delta)
	}
	*v = out
}
