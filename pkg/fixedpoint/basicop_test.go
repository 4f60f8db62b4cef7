package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaturatingArithmetic(t *testing.T) {
	testCases := []struct {
		name string
		got  int16
		want int16
	}{
		{"add saturates high", Add(32000, 1000), MaxInt16},
		{"sub saturates low", Sub(-32000, 1000), MinInt16},
		{"abs of min", Abs(MinInt16), MaxInt16},
		{"negate min", Negate(MinInt16), MaxInt16},
		{"mult half by half", Mult(16384, 16384), 8192},
		{"mult min by min", Mult(MinInt16, MinInt16), MaxInt16},
		{"mult_r rounds", MultR(3, 16384), 2},
		{"shl saturates positive", Shl(16384, 1), MaxInt16},
		{"shl saturates negative", Shl(-16385, 1), MinInt16},
		{"shl negative count", Shl(64, -3), 8},
		{"shr keeps sign", Shr(-1, 3), -1},
		{"shr large count", Shr(-5, 20), -1},
		{"shr negative count", Shr(5, -1), 10},
		{"shr_r rounds", ShrR(3, 1), 2},
		{"lshr is logical", Lshr(-2, 1), 32767},
		{"round", Round(0x00018000), 2},
		{"extract_h", ExtractH(-0x10000), -1},
		{"extract_l", ExtractL(0x12348000), MinInt16},
		{"max", Max(-3, 2), 2},
		{"min", Min(-3, 2), -3},
		{"mac_r rounds", MacR(0x8000, 1, 1), 1},
		{"msu_r rounds", MsuR(0x18000, 1, 1), 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestNorm(t *testing.T) {
	assert.Equal(t, int16(0), Norm(0))
	assert.Equal(t, int16(14), Norm(1))
	assert.Equal(t, int16(0), Norm(0x4000))
	assert.Equal(t, int16(15), Norm(-1))
	assert.Equal(t, int16(0), Norm(MinInt16))

	assert.Equal(t, int16(0), NormL(0))
	assert.Equal(t, int16(30), NormL(1))
	assert.Equal(t, int16(31), NormL(-1))
	assert.Equal(t, int16(0), NormL(MinInt32))
}

func TestDivS(t *testing.T) {
	assert.Equal(t, int16(16384), DivS(1, 2))
	assert.Equal(t, int16(16384), DivS(16384, 32767))
	assert.Equal(t, MaxInt16, DivS(100, 100))
	assert.Equal(t, int16(0), DivS(0, 100))
	assert.Equal(t, int16(32766), DivS(0x3fff, 0x4000))
}

func TestLongArithmetic(t *testing.T) {
	assert.Equal(t, MaxInt32, LMult(MinInt16, MinInt16))
	assert.Equal(t, int32(65536), LMult(16384, 2))
	assert.Equal(t, MaxInt32, LMac(MaxInt32-1, 1, 1))
	assert.Equal(t, MinInt32, LMsu(MinInt32+1, 1, 1))
	assert.Equal(t, int32(6), LMult0(2, 3))
	assert.Equal(t, MaxInt32, LShl(0x40000000, 1))
	assert.Equal(t, MinInt32, LShl(-0x40000001, 1))
	assert.Equal(t, int32(-1), LShr(-7, 40))
	assert.Equal(t, int32(8), LShl(64, -3))
	assert.Equal(t, int32(2), LShrR(3, 1))
	assert.Equal(t, MaxInt32, LNegate(MinInt32))
	assert.Equal(t, MaxInt32, LAbs(MinInt32))
	assert.Equal(t, MaxInt32, LAdd(MaxInt32, 1))
	assert.Equal(t, MinInt32, LSub(MinInt32, 1))
	assert.Equal(t, MaxInt32, LMac0(MaxInt32, 2, 3))
	assert.Equal(t, int32(-6), LMsu0(0, 2, 3))
	assert.Equal(t, int32(-0x10000), LDepositH(-1))
	assert.Equal(t, int32(-1), LDepositL(-1))
	// 0.5 * 0.5 in Q31/Q15
	assert.Equal(t, int32(1<<29), LMls(1<<30, 16384))
}

func TestDoublePrecisionFormat(t *testing.T) {
	for _, v := range []int32{0x12345678, -123456, 2, 1 << 30} {
		d := LExtract(v)
		assert.GreaterOrEqual(t, d.Lo, int16(0))
		assert.Equal(t, v, LComp(d))
	}

	half := LExtract(1 << 30)
	assert.Equal(t, int32(1<<29), Mpy32(half, half))
	assert.Equal(t, int32(1<<29), Mpy32x16(half, 16384))

	// 0.25 / 0.5
	assert.InDelta(t, 1<<30, Div32(1<<29, half), 64)
}

func TestRoots(t *testing.T) {
	assert.Equal(t, int16(23170), SqrtQ15(16384))
	assert.Equal(t, int16(16384), SqrtQ15(8192))
	assert.Equal(t, int16(11585), SqrtQ15(4096))
	assert.Equal(t, MaxInt16, SqrtQ15(MaxInt16))
	assert.Equal(t, int16(0), SqrtQ15(0))

	assert.InDelta(t, 1<<20, InvSqrt(1<<20), 2)
	assert.Equal(t, int32(0x3fffffff), InvSqrt(0))

	out, ok := SqrtI31(1 << 29)
	require.True(t, ok)
	assert.Equal(t, int32(1<<30), out)

	out, ok = SqrtI31(1 << 30)
	require.True(t, ok)
	assert.InDelta(t, 1518500249, out, 40000)

	_, ok = SqrtI31(-1)
	assert.False(t, ok)
}

func TestArrayHelpers(t *testing.T) {
	assert.Equal(t, int16(5), Exp16Array([]int16{100, -1000, 3}))
	assert.Equal(t, int16(0), Exp16Array([]int16{0, 0}))

	v, n := Cnv32ToNrm16(1 << 20)
	assert.Equal(t, int16(10), n)
	assert.Equal(t, int16(0x4000), v)
	assert.Equal(t, MaxInt16, Clamp16(40000))
	assert.Equal(t, MinInt16, Clamp16(-40000))
}
