package lpc

import fp "g711enhance/pkg/fixedpoint"

// Residual runs x through the analysis filter A(z), a in Q12. The first
// len(a)-1 samples of x only serve as filter memory, so the result has
// len(x)-len(a)+1 samples.
func Residual(a, x []int16) []int16 {
	order := len(a) - 1
	if order < 0 || len(x) <= order {
		return nil
	}
	res := make([]int16, len(x)-order)
	for i := range res {
		n := i + order
		acc := fp.LMult(x[n], a[0])
		for j := 1; j <= order; j++ {
			acc = fp.LMac(acc, a[j], x[n-j])
		}
		res[i] = fp.Round(fp.LShl(acc, 3))
	}
	return res
}

// Synthesize runs exc through 1/A(z), a in Q12. mem holds the last
// len(a)-1 outputs of the previous call, oldest first, and is updated in
// place.
func Synthesize(a, exc, mem []int16) []int16 {
	order := len(a) - 1
	buf := make([]int16, order+len(exc))
	copy(buf, mem[:order])

	for i, e := range exc {
		n := i + order
		acc := fp.LMult(a[0], e)
		for j := 1; j <= order; j++ {
			acc = fp.LMsu(acc, a[j], buf[n-j])
		}
		buf[n] = fp.Round(fp.LShl(acc, 3))
	}

	copy(mem[:order], buf[len(exc):])
	return buf[order:]
}
