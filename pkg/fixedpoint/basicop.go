// Package fixedpoint implements the saturating 16/32-bit integer operators the
// DSP packages are written against. Every operator clamps at the
// representable extremes instead of wrapping; the scale of a value is the
// caller's business.
package fixedpoint

// Range limits of the 16- and 32-bit operands.
const (
	MaxInt16 int16 = 32767
	MinInt16 int16 = -32768
	MaxInt32 int32 = 0x7fffffff
	MinInt32 int32 = -0x80000000
)

// Sat16 clamps a 32-bit intermediate to the 16-bit range.
func Sat16(v int32) int16 {
	if v > int32(MaxInt16) {
		return MaxInt16
	}
	if v < int32(MinInt16) {
		return MinInt16
	}
	return int16(v)
}

// Sat32 clamps a 64-bit intermediate to the 32-bit range.
func Sat32(v int64) int32 {
	if v > int64(MaxInt32) {
		return MaxInt32
	}
	if v < int64(MinInt32) {
		return MinInt32
	}
	return int32(v)
}

// =============================================================================
// 16-bit operators
// =============================================================================

// Add returns a+b, saturated.
func Add(a, b int16) int16 { return Sat16(int32(a) + int32(b)) }

// Sub returns a-b, saturated.
func Sub(a, b int16) int16 { return Sat16(int32(a) - int32(b)) }

// Abs returns |a|, with Abs(-32768) == 32767.
func Abs(a int16) int16 {
	if a == MinInt16 {
		return MaxInt16
	}
	if a < 0 {
		return -a
	}
	return a
}

// Negate returns -a, with Negate(-32768) == 32767.
func Negate(a int16) int16 {
	if a == MinInt16 {
		return MaxInt16
	}
	return -a
}

// Max returns the larger of a and b.
func Max(a, b int16) int16 {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b int16) int16 {
	if a < b {
		return a
	}
	return b
}

// Mult is the Q15 product (a*b)>>15, saturated.
func Mult(a, b int16) int16 {
	return Sat16((int32(a) * int32(b)) >> 15)
}

// MultR is Mult with rounding.
func MultR(a, b int16) int16 {
	return Sat16((int32(a)*int32(b) + 0x4000) >> 15)
}

// Shl shifts left with saturation; a negative count shifts right.
func Shl(a int16, n int16) int16 {
	if n < 0 {
		if n < -16 {
			n = -16
		}
		return Shr(a, -n)
	}
	if a == 0 {
		return 0
	}
	if n > 15 {
		if a > 0 {
			return MaxInt16
		}
		return MinInt16
	}
	r := int32(a) << uint(n)
	if r != int32(int16(r)) {
		if a > 0 {
			return MaxInt16
		}
		return MinInt16
	}
	return int16(r)
}

// Shr is an arithmetic right shift; a negative count shifts left.
func Shr(a int16, n int16) int16 {
	if n < 0 {
		if n < -16 {
			n = -16
		}
		return Shl(a, -n)
	}
	if n >= 15 {
		if a < 0 {
			return -1
		}
		return 0
	}
	return a >> uint(n)
}

// ShrR is Shr with rounding of the last shifted-out bit.
func ShrR(a int16, n int16) int16 {
	if n > 15 {
		return 0
	}
	out := Shr(a, n)
	if n > 0 && a&(1<<uint(n-1)) != 0 {
		out++
	}
	return out
}

// Lshr is a logical right shift of the 16-bit pattern.
func Lshr(a int16, n int16) int16 {
	if n <= 0 {
		return a
	}
	if n > 15 {
		return 0
	}
	return int16(uint16(a) >> uint(n))
}

// Norm returns the left shift that normalizes a (0 for 0, 15 for -1).
func Norm(a int16) int16 {
	if a == 0 {
		return 0
	}
	if a == -1 {
		return 15
	}
	if a < 0 {
		a = ^a
	}
	var n int16
	for a < 0x4000 {
		a <<= 1
		n++
	}
	return n
}

// DivS returns num/den in Q15 for 0 <= num <= den, den > 0. Out-of-domain
// arguments saturate instead of aborting.
func DivS(num, den int16) int16 {
	if num <= 0 || den <= 0 {
		return 0
	}
	if num >= den {
		return MaxInt16
	}
	lNum, lDen := int32(num), int32(den)
	var out int16
	for i := 0; i < 15; i++ {
		out <<= 1
		lNum <<= 1
		if lNum >= lDen {
			lNum -= lDen
			out++
		}
	}
	return out
}

// ExtractH returns the high 16 bits of l.
func ExtractH(l int32) int16 { return int16(l >> 16) }

// ExtractL returns the low 16 bits of l.
func ExtractL(l int32) int16 { return int16(l) }

// Round returns the rounded high half of l.
func Round(l int32) int16 { return ExtractH(LAdd(l, 0x8000)) }

// =============================================================================
// 32-bit operators
// =============================================================================

// LAdd returns a+b, saturated.
func LAdd(a, b int32) int32 { return Sat32(int64(a) + int64(b)) }

// LSub returns a-b, saturated.
func LSub(a, b int32) int32 { return Sat32(int64(a) - int64(b)) }

// LNegate returns -a, saturated.
func LNegate(a int32) int32 {
	if a == MinInt32 {
		return MaxInt32
	}
	return -a
}

// LAbs returns |a|, saturated.
func LAbs(a int32) int32 {
	if a == MinInt32 {
		return MaxInt32
	}
	if a < 0 {
		return -a
	}
	return a
}

// LMult is the Q31 product 2*a*b, saturated for -32768*-32768.
func LMult(a, b int16) int32 {
	p := int32(a) * int32(b)
	if p == 0x40000000 {
		return MaxInt32
	}
	return p << 1
}

// LMac accumulates acc + LMult(a, b).
func LMac(acc int32, a, b int16) int32 { return LAdd(acc, LMult(a, b)) }

// LMsu accumulates acc - LMult(a, b).
func LMsu(acc int32, a, b int16) int32 { return LSub(acc, LMult(a, b)) }

// LMult0 is the plain integer product a*b.
func LMult0(a, b int16) int32 { return int32(a) * int32(b) }

// LMac0 accumulates acc + a*b without the Q31 doubling.
func LMac0(acc int32, a, b int16) int32 { return LAdd(acc, LMult0(a, b)) }

// LMsu0 accumulates acc - a*b without the Q31 doubling.
func LMsu0(acc int32, a, b int16) int32 { return LSub(acc, LMult0(a, b)) }

// MacR is LMac followed by Round.
func MacR(acc int32, a, b int16) int16 { return Round(LMac(acc, a, b)) }

// MsuR is LMsu followed by Round.
func MsuR(acc int32, a, b int16) int16 { return Round(LMsu(acc, a, b)) }

// LDepositH places a in the high half, low half zero.
func LDepositH(a int16) int32 { return int32(a) << 16 }

// LDepositL sign-extends a to 32 bits.
func LDepositL(a int16) int32 { return int32(a) }

// LShl shifts left with saturation; a negative count shifts right.
func LShl(l int32, n int16) int32 {
	if n <= 0 {
		if n < -32 {
			n = -32
		}
		return LShr(l, -n)
	}
	for ; n > 0; n-- {
		if l > 0x3fffffff {
			return MaxInt32
		}
		if l < -0x40000000 {
			return MinInt32
		}
		l <<= 1
	}
	return l
}

// LShr is an arithmetic right shift; a negative count shifts left.
func LShr(l int32, n int16) int32 {
	if n < 0 {
		if n < -32 {
			n = -32
		}
		return LShl(l, -n)
	}
	if n >= 31 {
		if l < 0 {
			return -1
		}
		return 0
	}
	return l >> uint(n)
}

// LShrR is LShr with rounding of the last shifted-out bit.
func LShrR(l int32, n int16) int32 {
	if n > 31 {
		return 0
	}
	out := LShr(l, n)
	if n > 0 && l&(1<<uint(n-1)) != 0 {
		out++
	}
	return out
}

// NormL returns the left shift that normalizes l (0 for 0, 31 for -1).
func NormL(l int32) int16 {
	if l == 0 {
		return 0
	}
	if l == -1 {
		return 31
	}
	if l < 0 {
		l = ^l
	}
	var n int16
	for l < 0x40000000 {
		l <<= 1
		n++
	}
	return n
}

// LMls multiplies a Q31 value by a Q15 value.
func LMls(l int32, v int16) int32 {
	t := (l & 0xffff) * int32(v)
	t = LShr(t, 15)
	return LMac(t, v, ExtractH(l))
}
