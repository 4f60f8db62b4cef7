package spectral

import fp "g711enhance/pkg/fixedpoint"

// Inverse reconstructs a real block from a Hermitian spectrum in the packed
// layout. The spectrum is halved on load and in the five following passes,
// the last pass runs at full gain, so the result is the inverse DFT sum
// divided by 64 and Inverse(Forward(x)) is x/16. Every pass stays in 16
// bits with saturating arithmetic.
func Inverse(spec *[Size]int16) [Size]int16 {
	var re, im [Size]int16

	for i := 0; i < Size; i++ {
		r, j := unpack(spec, bitReverse[i])
		re[i] = fp.Shr(r, 1)
		im[i] = fp.Shr(j, 1)
	}

	// 2- to 32-point passes, halved
	for span := 2; span < Size; span <<= 1 {
		half := span / 2
		step := Size / span
		for base := 0; base < Size; base += span {
			for k := 0; k < half; k++ {
				a, b := base+k, base+k+half
				tr, ti := rotate(k*step, re[b], im[b])
				re[a], re[b] = fp.Shr(fp.Add(re[a], tr), 1), fp.Shr(fp.Sub(re[a], tr), 1)
				im[a], im[b] = fp.Shr(fp.Add(im[a], ti), 1), fp.Shr(fp.Sub(im[a], ti), 1)
			}
		}
	}

	// 64-point, only the real part survives
	var out [Size]int16
	for k := 0; k < Size/2; k++ {
		tr, _ := rotate(k, re[k+Size/2], im[k+Size/2])
		out[k] = fp.Add(re[k], tr)
		out[k+Size/2] = fp.Sub(re[k], tr)
	}
	return out
}

// unpack returns bin k of the Hermitian spectrum stored in packed layout.
func unpack(spec *[Size]int16, k int) (int16, int16) {
	switch {
	case k == 0 || k == Size/2:
		return spec[k], 0
	case k < Size/2:
		return spec[k], spec[Size-k]
	default:
		// conjugate of bin 64-k
		return spec[Size-k], fp.Negate(spec[k])
	}
}

// rotate multiplies (r, i) by exp(+j*m*pi/32) in Q15.
func rotate(m int, r, i int16) (int16, int16) {
	switch m {
	case 0:
		return r, i
	case Size / 4:
		return fp.Negate(i), r
	}
	c, s := twiddle(m)
	return fp.Sub(fp.MultR(c, r), fp.MultR(s, i)), fp.Add(fp.MultR(c, i), fp.MultR(s, r))
}

// InverseSymmetric inverse-transforms a real, even-symmetric spectrum given
// by its bins 0..32 and returns the first 33 samples of the (also even)
// time signal. It follows the same halving schedule as Inverse and skips the
// imaginary work the symmetry makes redundant.
func InverseSymmetric(bins *[Bins]int16) [Bins]int16 {
	var (
		x, xi [Size]int16
		X, Xi [Size]int16
	)

	for i := 0; i < Bins; i++ {
		x[i] = bins[i]
	}
	for i := Bins; i < Size; i++ {
		x[i] = bins[Size-i]
	}

	for i := 0; i < Size; i++ {
		X[i] = fp.Shr(x[bitReverse[i]], 1)
	}

	for i := 0; i < Size; i += 2 {
		x[i] = fp.Shr(fp.Add(X[i], X[i+1]), 1)
		x[i+1] = fp.Shr(fp.Sub(X[i], X[i+1]), 1)
	}

	for i := 0; i < Size; i += 4 {
		X[i] = fp.Shr(fp.Add(x[i], x[i+2]), 1)
		X[i+2] = fp.Shr(fp.Sub(x[i], x[i+2]), 1)
		X[i+1] = fp.Shr(x[i+1], 1)
		Xi[i+1] = fp.Shr(x[i+3], 1)
	}

	for i := 0; i < Size; i += 8 {
		x[i] = fp.Shr(fp.Add(X[i], X[i+4]), 1)
		x[i+4] = fp.Shr(fp.Sub(X[i], X[i+4]), 1)
		x[i+2] = fp.Shr(X[i+2], 1)
		xi[i+2] = fp.Shr(X[i+6], 1)

		tr := fp.MultR(sinTable[8], fp.Sub(X[i+5], Xi[i+5]))
		ti := fp.MultR(sinTable[8], fp.Add(Xi[i+5], X[i+5]))
		x[i+1] = fp.Shr(fp.Add(X[i+1], tr), 1)
		xi[i+1] = fp.Shr(fp.Add(Xi[i+1], ti), 1)
		x[i+3] = fp.Shr(fp.Sub(X[i+1], tr), 1)
		xi[i+3] = fp.Shr(fp.Sub(ti, Xi[i+1]), 1)
	}

	for i := 0; i < Size; i += 16 {
		X[i] = fp.Shr(fp.Add(x[i], x[i+8]), 1)
		X[i+8] = fp.Shr(fp.Sub(x[i], x[i+8]), 1)
		X[i+4] = fp.Shr(x[i+4], 1)
		Xi[i+4] = fp.Shr(x[i+12], 1)

		tr := fp.MultR(sinTable[8], fp.Sub(x[i+10], xi[i+10]))
		ti := fp.MultR(sinTable[8], fp.Add(xi[i+10], x[i+10]))
		X[i+2] = fp.Shr(fp.Add(x[i+2], tr), 1)
		Xi[i+2] = fp.Shr(fp.Add(xi[i+2], ti), 1)
		X[i+6] = fp.Shr(fp.Sub(x[i+2], tr), 1)
		Xi[i+6] = fp.Shr(fp.Sub(ti, xi[i+2]), 1)

		tr = fp.Sub(fp.MultR(sinTable[12], x[i+9]), fp.MultR(sinTable[4], xi[i+9]))
		ti = fp.Add(fp.MultR(sinTable[12], xi[i+9]), fp.MultR(sinTable[4], x[i+9]))
		X[i+1] = fp.Shr(fp.Add(x[i+1], tr), 1)
		Xi[i+1] = fp.Shr(fp.Add(xi[i+1], ti), 1)
		X[i+7] = fp.Shr(fp.Sub(x[i+1], tr), 1)
		Xi[i+7] = fp.Shr(fp.Sub(ti, xi[i+1]), 1)

		tr = fp.Sub(fp.MultR(sinTable[4], x[i+11]), fp.MultR(sinTable[12], xi[i+11]))
		ti = fp.Add(fp.MultR(sinTable[4], xi[i+11]), fp.MultR(sinTable[12], x[i+11]))
		X[i+3] = fp.Shr(fp.Add(x[i+3], tr), 1)
		Xi[i+3] = fp.Shr(fp.Add(xi[i+3], ti), 1)
		X[i+5] = fp.Shr(fp.Sub(x[i+3], tr), 1)
		Xi[i+5] = fp.Shr(fp.Sub(ti, xi[i+3]), 1)
	}

	// 32-point, lower half: only the real part is needed downstream
	x[0] = fp.Shr(fp.Add(X[0], X[16]), 1)
	x[16] = fp.Shr(fp.Sub(X[0], X[16]), 1)
	x[8] = fp.Shr(X[8], 1)
	for k := 1; k < 8; k++ {
		c, s := sinTable[16-2*k], sinTable[2*k]
		tr := fp.Sub(fp.MultR(c, X[k+16]), fp.MultR(s, Xi[k+16]))
		x[k] = fp.Shr(fp.Add(X[k], tr), 1)
		x[16-k] = fp.Shr(fp.Sub(X[k], tr), 1)
	}

	// 32-point, upper half
	x[32] = fp.Shr(fp.Add(X[32], X[48]), 1)
	x[48] = fp.Shr(fp.Sub(X[32], X[48]), 1)
	x[40] = fp.Shr(X[40], 1)
	xi[40] = fp.Shr(X[56], 1)
	for k := 1; k < 8; k++ {
		lo := 32 + k
		hi := lo + 16
		mirror := 48 - k
		c, s := sinTable[16-2*k], sinTable[2*k]

		tr := fp.Sub(fp.MultR(c, X[hi]), fp.MultR(s, Xi[hi]))
		ti := fp.Add(fp.MultR(c, Xi[hi]), fp.MultR(s, X[hi]))
		x[lo] = fp.Shr(fp.Add(X[lo], tr), 1)
		xi[lo] = fp.Shr(fp.Add(Xi[lo], ti), 1)
		x[mirror] = fp.Shr(fp.Sub(X[lo], tr), 1)
		xi[mirror] = fp.Shr(fp.Sub(ti, Xi[lo]), 1)
	}

	// 64-point
	var out [Bins]int16
	out[0] = fp.Add(x[0], x[32])
	out[32] = fp.Sub(x[0], x[32])
	out[16] = x[16]
	for k := 1; k < 16; k++ {
		c, s := sinTable[16-k], sinTable[k]
		tr := fp.Sub(fp.MultR(c, x[k+32]), fp.MultR(s, xi[k+32]))
		out[k] = fp.Add(x[k], tr)
		out[32-k] = fp.Sub(x[k], tr)
	}
	return out
}
