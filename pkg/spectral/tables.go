package spectral

// Size is the fixed transform length.
const Size = 64

// Bins is the number of distinct bins of a real 64-point spectrum (DC..Nyquist).
const Bins = Size/2 + 1

// bitReverse maps the natural index to the decimation-in-time input order.
var bitReverse = [Size]int{
	0, 32, 16, 48, 8, 40, 24, 56,
	4, 36, 20, 52, 12, 44, 28, 60,
	2, 34, 18, 50, 10, 42, 26, 58,
	6, 38, 22, 54, 14, 46, 30, 62,
	1, 33, 17, 49, 9, 41, 25, 57,
	5, 37, 21, 53, 13, 45, 29, 61,
	3, 35, 19, 51, 11, 43, 27, 59,
	7, 39, 23, 55, 15, 47, 31, 63,
}

// sinTable holds sin(k*pi/32) in Q15 for k = 0..15; cos(k*pi/32) is
// sinTable[16-k]. Entry 0 is never read by the butterflies.
var sinTable = [16]int16{
	-1, 3212, 6393, 9512, 12540, 15447, 18205, 20788,
	23170, 25330, 27246, 28899, 30274, 31357, 32138, 32610,
}

// twiddle returns (cos, sin) of m*pi/32 in Q15 for 0 < m < 32, m != 16.
func twiddle(m int) (int16, int16) {
	if m < 16 {
		return sinTable[16-m], sinTable[m]
	}
	return -sinTable[m-16], sinTable[32-m]
}
