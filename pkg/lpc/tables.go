package lpc

import fp "g711enhance/pkg/fixedpoint"

// LagConcealment is the lag window of the concealment analysis: 60 Hz
// bandwidth expansion with a 40 dB noise floor, one entry per lag 1..16.
var LagConcealment = [MaxOrder]fp.DPF{
	{Hi: 32728, Lo: 11918}, {Hi: 32619, Lo: 17274}, {Hi: 32438, Lo: 30692}, {Hi: 32187, Lo: 25832},
	{Hi: 31867, Lo: 24195}, {Hi: 31480, Lo: 28989}, {Hi: 31029, Lo: 24381}, {Hi: 30517, Lo: 7367},
	{Hi: 29946, Lo: 19522}, {Hi: 29321, Lo: 14788}, {Hi: 28645, Lo: 22083}, {Hi: 27923, Lo: 12911},
	{Hi: 27158, Lo: 31066}, {Hi: 26356, Lo: 27372}, {Hi: 25521, Lo: 22094}, {Hi: 24658, Lo: 5192},
}

// LagNoiseShaping is the lag window of the noise-shaping analysis.
var LagNoiseShaping = [NoiseShapingOrder]fp.DPF{
	{Hi: 32619, Lo: 17275}, {Hi: 32187, Lo: 25832}, {Hi: 31480, Lo: 28989}, {Hi: 30517, Lo: 7367},
}

// WindowLen is the length of the asymmetric concealment analysis window.
const WindowLen = 80

// Window is the asymmetric analysis window of the concealment LPC: a slow
// rise over 70 samples peaking near the newest samples, then a short fall.
var Window = [WindowLen]int16{
	2621, 2637, 2684, 2762, 2871, 3010, 3180, 3380, 3610, 3869,
	4157, 4473, 4816, 5185, 5581, 6002, 6447, 6915, 7406, 7918,
	8451, 9002, 9571, 10158, 10760, 11376, 12005, 12647, 13298, 13959,
	14628, 15302, 15982, 16666, 17351, 18037, 18723, 19406, 20086, 20761,
	21429, 22090, 22742, 23383, 24012, 24629, 25231, 25817, 26386, 26938,
	27470, 27982, 28473, 28941, 29386, 29807, 30203, 30573, 30916, 31231,
	31519, 31778, 32008, 32208, 32378, 32518, 32627, 32705, 32751, 32767,
	32029, 29888, 26554, 22352, 17694, 13036, 8835, 5500, 3359, 2621,
}

var noiseShapingWindow = [NoiseShapingWindowLen]int16{
	0, 668, 1142, 1636, 2152, 2688, 3245, 3820, 4414, 5026,
	5654, 6299, 6959, 7634, 8321, 9020, 9731, 10451, 11181, 11917,
	12660, 13408, 14160, 14913, 15668, 16423, 17176, 17925, 18671, 19410,
	20142, 20866, 21579, 22282, 22971, 23646, 24306, 24950, 25575, 26181,
	26767, 27332, 27873, 28391, 28884, 29352, 29793, 30206, 30590, 30946,
	31271, 31566, 31830, 32061, 32261, 32428, 32562, 32663, 32730, 32764,
	32730, 32428, 31830, 30946, 29793, 28391, 26767, 24950, 22971, 20866,
	18671, 16423, 14160, 11917, 9731, 7634, 5654, 3820, 2152, 668,
}

// DecimationFilter is the 9-tap low-pass (Q15, sum about 2.0) applied
// before the 4:1 decimation of the open-loop pitch search.
var DecimationFilter = [9]int16{3692, 6190, 8525, 10186, 10787, 10186, 8525, 6190, 3692}
