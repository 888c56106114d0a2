// Package telemetry tracks accelerated/scalar parity and per-frame latency.
// Nothing here feeds back into the numeric output.
package telemetry

// DefaultParityInterval is the number of accelerated frames between parity checks
const DefaultParityInterval = 10

// ParityStats summarize the absolute divergence between accelerated and scalar luma means
type ParityStats struct {
	MaxDiff  float64
	MeanDiff float64
	Samples  int
}

// Parity schedules and accumulates parity checks
type Parity struct {
	interval  int
	countdown int
	maxDiff   float64
	sumDiff   float64
	samples   int
}

// NewParity creates a Parity that checks once every interval accelerated frames
func NewParity(interval int) *Parity {
	if interval <= 0 {
		interval = DefaultParityInterval
	}
	return &Parity{interval: interval, countdown: interval}
}

// Arm is called once per frame. It counts down while checks are possible and reports
// whether a check is due. A due check stays due until Record consumes it.
func (p *Parity) Arm(active bool) bool {
	if !active {
		return false
	}
	if p.countdown > 0 {
		p.countdown--
	}
	return p.countdown <= 0
}

// Record consumes the pending check
func (p *Parity) Record(diff float64) {
	if diff > p.maxDiff {
		p.maxDiff = diff
	}
	p.sumDiff += diff
	p.samples++
	p.countdown = p.interval
}

// Stats returns the accumulated statistics
func (p *Parity) Stats() ParityStats {
	s := ParityStats{MaxDiff: p.maxDiff, Samples: p.samples}
	if p.samples > 0 {
		s.MeanDiff = p.sumDiff / float64(p.samples)
	}
	return s
}

// ResetStats clears the accumulators but keeps the schedule
func (p *Parity) ResetStats() {
	p.maxDiff = 0
	p.sumDiff = 0
	p.samples = 0
}
