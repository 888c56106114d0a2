package ppg

// HistoryCapacity is the depth of the rolling history
const HistoryCapacity = 64

// Sample is one history entry
type Sample struct {
	R, G, B, Y float64
	V          float64 // Mean-mode value of the frame
}

// History is a set of parallel fixed-capacity circular buffers, one entry per valid frame.
type History struct {
	r, g, b, y, v []float64
	pos           int
	count         int
}

// NewHistory allocates a history of the given capacity (HistoryCapacity when <= 0)
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{
		r: make([]float64, capacity),
		g: make([]float64, capacity),
		b: make([]float64, capacity),
		y: make([]float64, capacity),
		v: make([]float64, capacity),
	}
}

// Push appends a sample, overwriting the oldest once full
func (h *History) Push(s Sample) {
	h.r[h.pos] = s.R
	h.g[h.pos] = s.G
	h.b[h.pos] = s.B
	h.y[h.pos] = s.Y
	h.v[h.pos] = s.V
	h.pos = (h.pos + 1) % len(h.r)
	if h.count < len(h.r) {
		h.count++
	}
}

// Len is the number of valid entries, never more than Cap
func (h *History) Len() int { return h.count }

// Cap is the buffer capacity
func (h *History) Cap() int { return len(h.r) }

// Reset discards all entries
func (h *History) Reset() {
	h.pos = 0
	h.count = 0
}

// index maps "i-th most recent" (0 = latest) to a buffer slot
func (h *History) index(i int) int {
	n := len(h.r)
	return ((h.pos-1-i)%n + n) % n
}

// At returns the i-th most recent sample; At(0) is the latest push
func (h *History) At(i int) Sample {
	k := h.index(i)
	return Sample{R: h.r[k], G: h.g[k], B: h.b[k], Y: h.y[k], V: h.v[k]}
}

// Latest returns the most recent sample
func (h *History) Latest() Sample {
	return h.At(0)
}

// recentV copies the n most recent mean-mode values into dst, newest first
func (h *History) recentV(n int, dst []float64) []float64 {
	dst = dst[:0]
	for i := 0; i < n; i++ {
		dst = append(dst, h.v[h.index(i)])
	}
	return dst
}

// recentY copies the n most recent luma aggregates into dst, newest first
func (h *History) recentY(n int, dst []float64) []float64 {
	dst = dst[:0]
	for i := 0; i < n; i++ {
		dst = append(dst, h.y[h.index(i)])
	}
	return dst
}
