package g711

import fp "g711enhance/pkg/fixedpoint"

// highPassShift sets the pole to 1 - 2^-5 = 0.96875, about 50 Hz at 8 kHz.
const highPassShift = 5

// HighPass is the one-pole DC blocker run ahead of the noise-shaping
// encoder: y[n] = 0.96875*y[n-1] + x[n] - x[n-1].
type HighPass struct {
	prevIn int16
	// acc holds y in Q14
	acc int32
}

func (h *HighPass) Reset() {
	*h = HighPass{}
}

// Filter processes in into out. The slices may be the same.
func (h *HighPass) Filter(in, out []int16) {
	for i, x := range in {
		h.acc = fp.LSub(h.acc, fp.LShr(h.acc, highPassShift))
		h.acc = fp.LMac(h.acc, 0x2000, x)
		h.acc = fp.LMsu(h.acc, 0x2000, h.prevIn)
		h.prevIn = x
		out[i] = fp.Round(fp.LShl(h.acc, 2))
	}
}
