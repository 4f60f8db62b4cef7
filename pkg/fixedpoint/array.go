package fixedpoint

// Scale names the binary point of a buffer (the number of fractional
// bits, so Q15 is 15). It travels with buffers that cross package boundaries so a caller
// can check it instead of trusting a comment.
type Scale int8

const (
	Q0  Scale = 0
	Q12 Scale = 12
	Q14 Scale = 14
	Q15 Scale = 15
	Q16 Scale = 16
)

// One returns 1.0 at scale s, saturated to 16 bits.
func (s Scale) One() int16 {
	if s >= 15 {
		return MaxInt16
	}
	return int16(1) << s
}

// Exp16Array returns the left shift that normalizes the largest magnitude of x.
func Exp16Array(x []int16) int16 {
	var peak int16
	for _, v := range x {
		if a := Abs(v); a > peak {
			peak = a
		}
	}
	return Norm(peak)
}

// Cnv32ToNrm16 left-justifies l into 16 bits and returns the applied shift.
func Cnv32ToNrm16(l int32) (int16, int16) {
	n := NormL(l)
	return ExtractH(LShl(l, n)), n
}

// Clamp16 clamps an int to the 16-bit range.
func Clamp16(v int) int16 {
	if v > int(MaxInt16) {
		return MaxInt16
	}
	if v < int(MinInt16) {
		return MinInt16
	}
	return int16(v)
}
