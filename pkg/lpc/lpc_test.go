package lpc

import (
	"math"
	"math/rand"
	"testing"

	fp "g711enhance/pkg/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toneWithNoise(seed int64, n int, amp, freq float64, noise int) []int16 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]int16, n)
	for i := range x {
		v := amp*math.Sin(2*math.Pi*freq*float64(i)) + float64(rng.Intn(2*noise+1)-noise)
		x[i] = int16(v)
	}
	return x
}

func energy(x []int16) float64 {
	var e float64
	for _, v := range x {
		e += float64(v) * float64(v)
	}
	return e
}

func TestLevinsonFirstOrder(t *testing.T) {
	r := []fp.DPF{fp.LExtract(0x40000000), fp.LExtract(0x20000000)}

	res := Levinson(r, 1)
	require.True(t, res.Stable)
	require.Len(t, res.A, 2)
	assert.Equal(t, int16(4096), res.A[0])
	assert.InDelta(t, -2048, res.A[1], 1)
	assert.InDelta(t, -16384, res.RC[0], 1)
}

func TestLevinsonSecondOrderAR1(t *testing.T) {
	// autocorrelation of an AR(1) process with rho = 0.5
	r := []fp.DPF{fp.LExtract(0x40000000), fp.LExtract(0x20000000), fp.LExtract(0x10000000)}

	res := Levinson(r, 2)
	require.True(t, res.Stable)
	assert.InDelta(t, -2048, res.A[1], 2)
	assert.InDelta(t, 0, res.A[2], 2)
	assert.InDelta(t, 0, res.RC[1], 4)
}

func TestLevinsonUnstable(t *testing.T) {
	// r[2] incompatible with r[0], r[1]: |k2| would exceed one
	r := []fp.DPF{fp.LExtract(0x40000000), fp.LExtract(0x3FF00000), fp.LExtract(-0x40000000)}

	res := Levinson(r, 2)
	assert.False(t, res.Stable)
	assert.Nil(t, res.A)
	assert.Nil(t, res.RC)
}

func TestLevinsonRejectsBadOrder(t *testing.T) {
	r := make([]fp.DPF, 3)
	assert.False(t, Levinson(r, 0).Stable)
	assert.False(t, Levinson(r, 5).Stable)
	assert.False(t, Levinson(make([]fp.DPF, MaxOrder+2), MaxOrder+1).Stable)
}

func TestStabilityOnToneWithNoise(t *testing.T) {
	const order = 10

	tests := []struct {
		name        string
		amp         float64
		freq        float64
		noise       int
		predictable bool
	}{
		{"low tone", 8000, 0.02, 300, true},
		{"mid tone", 12000, 0.07, 500, true},
		{"high tone", 6000, 0.31, 200, true},
		{"white noise", 0, 0, 4000, false},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x := toneWithNoise(int64(i+1), WindowLen, tc.amp, tc.freq, tc.noise)

			r := Autocorr(x, Window[:], order)
			LagWindow(r, LagConcealment[:order])
			res := Levinson(r, order)

			require.True(t, res.Stable)
			require.Len(t, res.A, order+1)
			require.Len(t, res.RC, order)
			for k, rc := range res.RC {
				assert.Less(t, int(fp.Abs(rc)), 32768, "reflection coefficient %d", k)
				assert.LessOrEqual(t, int(fp.Abs(rc)), instabilityThreshold, "reflection coefficient %d", k)
			}

			e := Residual(res.A, x)
			require.Len(t, e, WindowLen-order)
			if tc.predictable {
				assert.LessOrEqual(t, energy(e), energy(x[order:]))
			}
		})
	}
}

func TestAutocorrOverflowRetry(t *testing.T) {
	x := make([]int16, WindowLen)
	for i := range x {
		if i%2 == 0 {
			x[i] = 32767
		} else {
			x[i] = -32768
		}
	}
	win := make([]int16, WindowLen)
	for i := range win {
		win[i] = 32767
	}

	r := Autocorr(x, win, 2)
	require.Len(t, r, 3)
	// normalized zero lag, alternating signal gives a strongly negative lag 1
	assert.GreaterOrEqual(t, r[0].Hi, int16(0x4000))
	assert.Less(t, r[1].Hi, int16(-0x3000))
	assert.Greater(t, r[2].Hi, int16(0x3000))
}

func TestAutocorrSilence(t *testing.T) {
	x := make([]int16, WindowLen)
	r := Autocorr(x, Window[:], 4)
	// the energy floor keeps r[0] positive
	assert.Equal(t, int16(0x4000), r[0].Hi)
	for k := 1; k < len(r); k++ {
		assert.Equal(t, fp.DPF{}, r[k])
	}
}

func TestWeight(t *testing.T) {
	ap := Weight([]int16{4096, 4096, 4096}, 16384)
	assert.Equal(t, []int16{4096, 2048, 1024}, ap)

	assert.Empty(t, Weight(nil, 16384))
}

func TestResidualSynthesizeRoundTrip(t *testing.T) {
	a := []int16{4096, -2048}
	x := toneWithNoise(9, 120, 5000, 0.05, 100)

	e := Residual(a, x)
	mem := []int16{x[0]}
	y := Synthesize(a, e, mem)

	require.Len(t, y, len(x)-1)
	for i := range y {
		assert.InDelta(t, x[i+1], y[i], 2, "sample %d", i)
	}
	assert.Equal(t, y[len(y)-1], mem[0])
}

func TestAutocorrNoiseShaping(t *testing.T) {
	t.Run("silence is flagged by the norm", func(t *testing.T) {
		var x [NoiseShapingWindowLen]int16
		r, norm := AutocorrNoiseShaping(&x)
		require.Len(t, r, NoiseShapingOrder+1)
		assert.Equal(t, int16(16), norm)
		assert.Equal(t, int16(20000), r[0].Hi)
	})

	t.Run("speech-like block yields a stable predictor", func(t *testing.T) {
		var x [NoiseShapingWindowLen]int16
		copy(x[:], toneWithNoise(4, NoiseShapingWindowLen, 9000, 0.04, 400))

		r, norm := AutocorrNoiseShaping(&x)
		assert.Less(t, norm, int16(16))

		res := Levinson(r, NoiseShapingOrder)
		require.True(t, res.Stable)
		assert.Equal(t, int16(4096), res.A[0])
	})
}
