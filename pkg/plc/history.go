package plc

// history is a fixed-span sample memory, oldest sample first. Pushing a
// frame drops as many samples from the old end, so positions counted from
// the newest sample stay put across calls.
type history struct {
	buf []int16
}

func newHistory(span int) history {
	return history{buf: make([]int16, span)}
}

// push appends frame and drops the oldest len(frame) samples.
func (h *history) push(frame []int16) {
	if len(frame) >= len(h.buf) {
		copy(h.buf, frame[len(frame)-len(h.buf):])
		return
	}
	n := copy(h.buf, h.buf[len(frame):])
	copy(h.buf[n:], frame)
}

// tail returns the newest n samples. The slice aliases the history.
func (h *history) tail(n int) []int16 {
	return h.buf[len(h.buf)-n:]
}

func (h *history) reset() {
	clear(h.buf)
}
