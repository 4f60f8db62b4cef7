package postfilter

// analysisWindow is the asymmetric Hann-like analysis window: a long rise
// over 48 samples and a short fall over the 16 newest.
var analysisWindow = [windowLen]int16{
	34, 137, 308, 547, 852, 1222, 1656, 2151, 2706, 3319, 3986, 4705, 5474, 6288, 7144, 8039,
	8969, 9931, 10919, 11930, 12960, 14005, 15059, 16119, 17180, 18237, 19287, 20325, 21346, 22346, 23322, 24268,
	25181, 26057, 26893, 27684, 28429, 29122, 29763, 30347, 30872, 31337, 31739, 32077, 32349, 32554, 32691, 32759,
	32694, 32104, 30947, 29263, 27113, 24576, 21743, 18716, 15604, 12521, 9578, 6880, 4526, 2601, 1174, 296,
}

// fadeIn and fadeOut weight the new and previous filter over the first
// crossfadeLen output samples of a frame. They sum to 32767 at each position.
var (
	fadeIn  = [crossfadeLen]int16{1656, 5474, 10919, 17180, 23322, 28429, 31739}
	fadeOut = [crossfadeLen]int16{31111, 27293, 21848, 15587, 9445, 4338, 1028}
)

// tapWindow truncates the zero-phase impulse response; entry k applies to
// the taps at distance halfTaps-k from the center.
var tapWindow = [halfTaps + 1]int16{
	0, 278, 1106, 2454, 4276, 6510, 9081, 11900, 14872, 17895, 20867, 23686, 26257, 28491, 30313, 31661, 32489,
}

// maxCorrection bounds |out-ref| by the normalization of the reference
// sample, i.e. by the quantization step of its log-law segment.
var maxCorrection = [16]int16{512, 256, 128, 64, 32, 16, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8}
