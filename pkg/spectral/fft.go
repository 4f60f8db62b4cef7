// Package spectral implements the fixed 64-point real FFT pair used by the
// post-filter.
//
// Spectra use a packed layout: index 0 is DC, index 32 is Nyquist, indices
// 1..31 hold the real parts of bins 1..31 and index 64-k holds the imaginary
// part of bin k.
package spectral

import fp "g711enhance/pkg/fixedpoint"

// Forward computes the split-radix, decimation-in-time FFT of a real block.
// The input is halved on load and in the three following passes, so the
// result is DFT(x)/16. The input is not modified.
func Forward(in *[Size]int16) [Size]int16 {
	var (
		x, xi [Size]int16 // time-side work buffers
		X, Xi [Size]int16 // spectrum-side work buffers
	)

	for i := 0; i < Size; i++ {
		X[i] = fp.Shr(in[bitReverse[i]], 1)
	}

	// 2-point butterflies
	for i := 0; i < Size; i += 2 {
		x[i] = fp.Shr(fp.Add(X[i], X[i+1]), 1)
		x[i+1] = fp.Shr(fp.Sub(X[i], X[i+1]), 1)
	}

	// 4-point
	for i := 0; i < Size; i += 4 {
		X[i] = fp.Shr(fp.Add(x[i], x[i+2]), 1)
		X[i+2] = fp.Shr(fp.Sub(x[i], x[i+2]), 1)
		X[i+1] = fp.Shr(x[i+1], 1)
		Xi[i+1] = fp.Shr(fp.Negate(x[i+3]), 1)
	}

	// 8-point
	for i := 0; i < Size; i += 8 {
		x[i] = fp.Shr(fp.Add(X[i], X[i+4]), 1)
		x[i+4] = fp.Shr(fp.Sub(X[i], X[i+4]), 1)
		x[i+2] = fp.Shr(X[i+2], 1)
		xi[i+2] = fp.Shr(fp.Negate(X[i+6]), 1)

		tr := fp.MultR(sinTable[8], fp.Add(X[i+5], Xi[i+5]))
		ti := fp.MultR(sinTable[8], fp.Sub(Xi[i+5], X[i+5]))
		x[i+1] = fp.Shr(fp.Add(X[i+1], tr), 1)
		xi[i+1] = fp.Shr(fp.Add(Xi[i+1], ti), 1)
		x[i+3] = fp.Shr(fp.Sub(X[i+1], tr), 1)
		xi[i+3] = fp.Shr(fp.Sub(ti, Xi[i+1]), 1)
	}

	// 16-point, no more scaling from here on
	for i := 0; i < Size; i += 16 {
		X[i] = fp.Add(x[i], x[i+8])
		X[i+8] = fp.Sub(x[i], x[i+8])
		X[i+4] = x[i+4]
		Xi[i+4] = fp.Negate(x[i+12])

		tr := fp.MultR(sinTable[8], fp.Add(x[i+10], xi[i+10]))
		ti := fp.MultR(sinTable[8], fp.Sub(xi[i+10], x[i+10]))
		X[i+2] = fp.Add(x[i+2], tr)
		Xi[i+2] = fp.Add(xi[i+2], ti)
		X[i+6] = fp.Sub(x[i+2], tr)
		Xi[i+6] = fp.Sub(ti, xi[i+2])

		tr = fp.Add(fp.MultR(sinTable[12], x[i+9]), fp.MultR(sinTable[4], xi[i+9]))
		ti = fp.Sub(fp.MultR(sinTable[12], xi[i+9]), fp.MultR(sinTable[4], x[i+9]))
		X[i+1] = fp.Add(x[i+1], tr)
		Xi[i+1] = fp.Add(xi[i+1], ti)
		X[i+7] = fp.Sub(x[i+1], tr)
		Xi[i+7] = fp.Sub(ti, xi[i+1])

		tr = fp.Add(fp.MultR(sinTable[4], x[i+11]), fp.MultR(sinTable[12], xi[i+11]))
		ti = fp.Sub(fp.MultR(sinTable[4], xi[i+11]), fp.MultR(sinTable[12], x[i+11]))
		X[i+3] = fp.Add(x[i+3], tr)
		Xi[i+3] = fp.Add(xi[i+3], ti)
		X[i+5] = fp.Sub(x[i+3], tr)
		Xi[i+5] = fp.Sub(ti, xi[i+3])
	}

	// 32-point
	for i := 0; i < Size; i += 32 {
		i16 := i + 16
		x[i] = fp.Add(X[i], X[i16])
		x[i16] = fp.Sub(X[i], X[i16])
		x[i+8] = X[i+8]
		xi[i+8] = fp.Negate(X[i+24])

		for k := 1; k < 8; k++ {
			lo := i + k
			hi := lo + 16
			mirror := i16 - k
			c, s := sinTable[16-2*k], sinTable[2*k]

			tr := fp.Add(fp.MultR(c, X[hi]), fp.MultR(s, Xi[hi]))
			ti := fp.Sub(fp.MultR(c, Xi[hi]), fp.MultR(s, X[hi]))
			x[lo] = fp.Add(X[lo], tr)
			xi[lo] = fp.Add(Xi[lo], ti)
			x[mirror] = fp.Sub(X[lo], tr)
			xi[mirror] = fp.Sub(ti, Xi[lo])
		}
	}

	// 64-point
	X[0] = fp.Add(x[0], x[32])
	X[32] = fp.Sub(x[0], x[32])
	X[16] = x[16]
	Xi[16] = fp.Negate(x[48])

	for k := 1; k < 16; k++ {
		hi := k + 32
		mirror := 32 - k
		c, s := sinTable[16-k], sinTable[k]

		tr := fp.Add(fp.MultR(c, x[hi]), fp.MultR(s, xi[hi]))
		ti := fp.Sub(fp.MultR(c, xi[hi]), fp.MultR(s, x[hi]))
		X[k] = fp.Add(x[k], tr)
		Xi[k] = fp.Add(xi[k], ti)
		X[mirror] = fp.Sub(x[k], tr)
		Xi[mirror] = fp.Sub(ti, xi[k])
	}

	for i := Bins; i < Size; i++ {
		X[i] = Xi[Size-i]
	}
	return X
}
