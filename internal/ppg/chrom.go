package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ChromEstimate is the chrominance pulse value derived from the rolling history
type ChromEstimate struct {
	Value     float64 // offset + scale*pulse, clamped to [0, 255]; NaN when invalid
	Pulse     float64 // Raw projection at the latest sample
	Amplitude float64 // Sample std of the X projection
	Alpha     float64
	Valid     bool
}

// CHROM projections
func chromX(r, g float64) float64    { return 3.0*r - 2.0*g }
func chromY(r, g, b float64) float64 { return 1.5*r + 1.0*g - 1.5*b }

const minStd = 1e-6

// EstimateChrom computes the CHROM (ModeChrom) or POS (any other mode) pulse value over
// the whole history. It only reads h. At least t.MinChromSamples entries are required.
func EstimateChrom(h *History, mode Mode, t Tuning) ChromEstimate {
	n := h.Len()
	if n < t.MinChromSamples || n < 2 {
		return ChromEstimate{Value: math.NaN(), Pulse: math.NaN()}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		s := h.At(i)
		xs[i] = chromX(s.R, s.G)
		ys[i] = chromY(s.R, s.G, s.B)
	}
	_, stdX := meanStd(xs)
	_, stdY := meanStd(ys)

	est := ChromEstimate{Amplitude: stdX, Valid: true}
	est.Alpha = ratioOrOne(stdX, stdY)

	last := h.Latest()
	if mode == ModeChrom {
		est.Pulse = chromX(last.R, last.G) - est.Alpha*chromY(last.R, last.G, last.B)
	} else {
		est.Pulse = posPulse(h, n)
	}
	est.Value = clamp(t.ChromOffset+t.ChromScale*est.Pulse, 0, 255)
	return est
}

// posPulse projects mean-normalized channels and combines them as s1 + alpha*s2
func posPulse(h *History, n int) float64 {
	rs := make([]float64, n)
	gs := make([]float64, n)
	bs := make([]float64, n)
	for i := 0; i < n; i++ {
		s := h.At(i)
		rs[i], gs[i], bs[i] = s.R, s.G, s.B
	}
	meanR := max(stat.Mean(rs, nil), minStd)
	meanG := max(stat.Mean(gs, nil), minStd)
	meanB := max(stat.Mean(bs, nil), minStd)

	s1 := make([]float64, n)
	s2 := make([]float64, n)
	for i := 0; i < n; i++ {
		rn := rs[i]/meanR - 1
		gn := gs[i]/meanG - 1
		bn := bs[i]/meanB - 1
		s1[i] = chromX(rn, gn)
		s2[i] = chromY(rn, gn, bn)
	}
	_, std1 := meanStd(s1)
	_, std2 := meanStd(s2)
	alpha := ratioOrOne(std1, std2)

	// Index 0 is the latest sample.
	return s1[0] + alpha*s2[0]
}

// meanStd returns the mean and sample (N-1) standard deviation. Rounding can push the
// variance of a flat series just below zero; that reads as 0.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) < 2 {
		return stat.Mean(xs, nil), 0
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func ratioOrOne(num, den float64) float64 {
	if den > minStd {
		return num / den
	}
	return 1.0
}
