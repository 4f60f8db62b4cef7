package lpc

import fp "g711enhance/pkg/fixedpoint"

// instabilityThreshold is the largest reflection coefficient magnitude
// (Q15) accepted by Levinson.
const instabilityThreshold = 32750

// CoeffScale is the binary point of predictor coefficients.
const CoeffScale = fp.Q12

// Result is the outcome of a Levinson-Durbin recursion.
type Result struct {
	// A holds a[0..order] at CoeffScale, a[0] = 1.
	A []int16
	// RC holds the reflection coefficients k[0..order-1] in Q15.
	RC []int16
	// Stable is false when a reflection coefficient came too close to
	// unity. A and RC are nil in that case and the caller keeps whatever
	// filter it used before.
	Stable bool
}

// Levinson solves the normal equations for the autocorrelation r[0..order].
// The recursion runs in double precision with a normalized prediction
// error energy.
func Levinson(r []fp.DPF, order int) Result {
	if order < 1 || order > MaxOrder || len(r) < order+1 {
		return Result{}
	}

	var a, an [MaxOrder + 1]fp.DPF
	rc := make([]int16, order)

	// k = a[1] = -r[1]/r[0]
	t1 := fp.LComp(r[1])
	t0 := fp.Div32(fp.LAbs(t1), r[0])
	if t1 > 0 {
		t0 = fp.LNegate(t0)
	}
	k := fp.LExtract(t0)
	rc[0] = k.Hi
	a[1] = fp.LExtract(fp.LShr(t0, 4))

	// alpha = r[0]*(1-k^2)
	alpha, alphaExp := normalizedAlpha(r[0], k, 0)

	for i := 2; i <= order; i++ {
		// t0 = sum(r[j]*a[i-j], j=1..i-1) + r[i]
		t0 = fp.Mpy32(r[1], a[i-1])
		for j := 2; j < i; j++ {
			t0 = fp.LAdd(t0, fp.Mpy32(r[j], a[i-j]))
		}
		t0 = fp.LShl(t0, 4)
		t0 = fp.LAdd(t0, fp.LComp(r[i]))

		// k = -t0/alpha
		t2 := fp.Div32(fp.LAbs(t0), alpha)
		if t0 > 0 {
			t2 = fp.LNegate(t2)
		}
		t2 = fp.LShl(t2, alphaExp)
		k = fp.LExtract(t2)
		rc[i-1] = k.Hi

		if fp.Abs(k.Hi) > instabilityThreshold {
			return Result{}
		}

		for j := 1; j < i; j++ {
			t := fp.Mpy32(k, a[i-j])
			an[j] = fp.LExtract(fp.LAdd(t, fp.LComp(a[j])))
		}
		an[i] = fp.LExtract(fp.LShr(t2, 4))

		alpha, alphaExp = normalizedAlpha(alpha, k, alphaExp)

		copy(a[1:i+1], an[1:i+1])
	}

	res := Result{A: make([]int16, order+1), RC: rc, Stable: true}
	res.A[0] = CoeffScale.One()
	for i := 1; i <= order; i++ {
		res.A[i] = fp.Round(fp.LShl(fp.LComp(a[i]), 1))
	}
	return res
}

// normalizedAlpha returns alpha*(1-k^2), renormalized, with the updated
// exponent.
func normalizedAlpha(alpha, k fp.DPF, exp int16) (fp.DPF, int16) {
	t := fp.LAbs(fp.Mpy32(k, k))
	t = fp.LSub(fp.MaxInt32, t)
	t = fp.Mpy32(alpha, fp.LExtract(t))

	n := fp.NormL(t)
	return fp.LExtract(fp.LShl(t, n)), exp + n
}

// Weight returns the bandwidth-expanded copy of a: ap[i] = a[i]*gamma^i.
func Weight(a []int16, gamma int16) []int16 {
	ap := make([]int16, len(a))
	if len(a) == 0 {
		return ap
	}
	ap[0] = a[0]
	fac := gamma
	for i := 1; i < len(a); i++ {
		ap[i] = fp.MultR(a[i], fac)
		fac = fp.MultR(fac, gamma)
	}
	return ap
}
