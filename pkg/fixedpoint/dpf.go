package fixedpoint

// DPF is the double-precision format used by the LPC code: a 32-bit value
// split as hi<<16 + lo<<1, with lo in [0, 16383].
type DPF struct {
	Hi int16
	Lo int16
}

// LExtract splits l into DPF.
func LExtract(l int32) DPF {
	hi := ExtractH(l)
	lo := ExtractL(LMsu(LShr(l, 1), hi, 16384))
	return DPF{Hi: hi, Lo: lo}
}

// LComp rebuilds the 32-bit value of d.
func LComp(d DPF) int32 {
	return LMac(LDepositH(d.Hi), d.Lo, 1)
}

// Mpy32 multiplies two DPF values, result in Q31 of the operand scales.
func Mpy32(a, b DPF) int32 {
	l := LMult(a.Hi, b.Hi)
	l = LMac(l, Mult(a.Hi, b.Lo), 1)
	return LMac(l, Mult(a.Lo, b.Hi), 1)
}

// Mpy32x16 multiplies a DPF value by a 16-bit value.
func Mpy32x16(a DPF, n int16) int32 {
	l := LMult(a.Hi, n)
	return LMac(l, Mult(a.Lo, n), 1)
}

// Div32 computes num/den with 0 <= num < den and den normalized
// (den.Hi >= 0x4000). The result is Q31.
func Div32(num int32, den DPF) int32 {
	approx := DivS(0x3fff, den.Hi) // 1/den in Q14

	// 1/den = approx * (2.0 - den*approx)
	l := Mpy32x16(den, approx)
	l = LSub(MaxInt32, l)
	l = Mpy32x16(LExtract(l), approx) // Q29

	l = Mpy32(LExtract(num), LExtract(l))
	return LShl(l, 2)
}
