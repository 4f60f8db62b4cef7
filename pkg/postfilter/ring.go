package postfilter

// ring keeps the last taps input samples contiguous without shifting:
// every sample is stored twice, taps apart, so the newest taps samples
// always form one slice.
type ring struct {
	buf    [2 * taps]int16
	bottom int
}

func (r *ring) push(v int16) {
	if r.bottom == taps {
		r.bottom = 0
	}
	r.buf[r.bottom] = v
	r.buf[r.bottom+taps] = v
	r.bottom++
}

// window returns the last taps samples, oldest first. The slice aliases
// the ring and is only valid until the next push.
func (r *ring) window() []int16 {
	return r.buf[r.bottom : r.bottom+taps]
}
