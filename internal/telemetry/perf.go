package telemetry

import (
	"slices"
	"time"
)

const (
	DefaultPerfWindow     = 300
	DefaultReportInterval = 100
)

// LatencySummary is a percentile report over the latency window
type LatencySummary struct {
	Frames int // Entries in the window
	P50    time.Duration
	P95    time.Duration
}

// Perf keeps the most recent per-frame durations in a ring
type Perf struct {
	ring     []time.Duration
	next     int
	count    int
	frames   uint64
	interval uint64
}

// NewPerf creates a ring of window entries that reports every interval frames
func NewPerf(window, interval int) *Perf {
	if window <= 0 {
		window = DefaultPerfWindow
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Perf{ring: make([]time.Duration, window), interval: uint64(interval)}
}

// Record adds one duration and reports whether a summary is due
func (p *Perf) Record(d time.Duration) bool {
	p.ring[p.next] = d
	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
	p.frames++
	return p.frames%p.interval == 0
}

// Frames is the total number of recorded frames
func (p *Perf) Frames() uint64 { return p.frames }

// Summary computes p50/p95 over the window
func (p *Perf) Summary() LatencySummary {
	if p.count == 0 {
		return LatencySummary{}
	}
	sorted := slices.Clone(p.ring[:p.count])
	slices.Sort(sorted)
	return LatencySummary{
		Frames: p.count,
		P50:    percentile(sorted, 0.5),
		P95:    percentile(sorted, 0.95),
	}
}

func percentile(sorted []time.Duration, fraction float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	fraction = min(max(fraction, 0), 1)
	return sorted[int(fraction*float64(len(sorted)-1))]
}
