package sink

import "sync"

// DefaultBufferSize holds about ten seconds at 30 fps
const DefaultBufferSize = 300

// Buffer keeps the most recent points in memory for status queries
type Buffer struct {
	j joiner

	mu     sync.RWMutex
	ring   []Point
	next   int
	count  int
	total  uint64
	values uint64
}

// NewBuffer creates a Buffer of size points (DefaultBufferSize when <= 0)
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{ring: make([]Point, size)}
}

func (b *Buffer) PushSample(value, ts float64) error {
	b.j.sample(value, ts)
	return nil
}

func (b *Buffer) PushConfidence(value, ts float64) error {
	p := b.j.confidence(value, ts)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = p
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.total++
	if p.HasValue() {
		b.values++
	}
	return nil
}

// Latest returns the most recent point
func (b *Buffer) Latest() (Point, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.count == 0 {
		return Point{}, false
	}
	return b.ring[(b.next-1+len(b.ring))%len(b.ring)], true
}

// Snapshot returns the buffered points, oldest first
func (b *Buffer) Snapshot() []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Point, 0, b.count)
	start := (b.next - b.count + len(b.ring)) % len(b.ring)
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Counts returns the number of frames seen and how many carried a sample
func (b *Buffer) Counts() (frames, samples uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total, b.values
}

// Reset drops every buffered point
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next, b.count, b.total, b.values = 0, 0, 0, 0
}
