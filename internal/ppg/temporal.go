package ppg

import (
	"slices"
)

// TemporalStats summarize the recent mean-mode history
type TemporalStats struct {
	Mean  float64 // Windowed mean; the frame value until enough history exists
	Std   float64
	Score float64
	Valid bool
}

// ComputeTemporal evaluates the most recent min(len, TemporalWindow) mean-mode values.
// frameValue stands in for the windowed mean before MinTemporalSamples exist.
func ComputeTemporal(h *History, frameValue float64, t Tuning) TemporalStats {
	n := h.Len()
	if n < t.MinTemporalSamples {
		return TemporalStats{Mean: frameValue, Score: t.TemporalDefaultScore}
	}
	window := min(n, t.TemporalWindow)
	mean, std := meanStd(h.recentV(window, make([]float64, 0, window)))
	score := clamp01(std / t.TemporalDivisor)
	return TemporalStats{Mean: mean, Std: std, Score: score, Valid: true}
}

// ExposureGate scores the luma history against dark and saturated thresholds using the
// low and high nearest-rank percentiles. It is 1 until MinGateSamples exist.
func ExposureGate(h *History, t Tuning) float64 {
	n := h.Len()
	if n < t.MinGateSamples {
		return 1.0
	}
	ys := h.recentY(n, make([]float64, 0, n))
	slices.Sort(ys)
	p10 := Percentile(ys, t.GateLowPercentile)
	p90 := Percentile(ys, t.GateHighPercentile)
	dark := clamp01(p10 / t.GateBand)
	bright := clamp01((255.0 - p90) / t.GateBand)
	return min(dark, bright)
}

// Percentile returns sorted[int(fraction*(len-1))] without interpolation
func Percentile(sorted []float64, fraction float64) float64 {
	if len(sorted) == 0 {
		return nan()
	}
	idx := int(clamp01(fraction) * float64(len(sorted)-1))
	return sorted[idx]
}
