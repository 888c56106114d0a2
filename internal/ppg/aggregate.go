package ppg

import (
	"math"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/planes"
)

// PatchStats are the per-patch means and quality scores
type PatchStats struct {
	Luma       planes.LumaSums
	MeanY      float64
	MeanR      float64
	MeanG      float64
	MeanB      float64
	Value      float64 // Selected channel, clamped to [0, 255]
	Exposure   float64
	Amplitude  float64 // Zero outside chrominance modes
	Confidence float64
	Weight     float64
}

// ExposureScore is 1 inside [dark, bright] and ramps linearly to 0 over band at each end
func ExposureScore(meanY float64, t Tuning) float64 {
	switch {
	case meanY < t.ExposureDark:
		return clamp01(meanY / t.ExposureBand)
	case meanY > t.ExposureBright:
		return clamp01((255.0 - meanY) / t.ExposureBand)
	default:
		return 1.0
	}
}

// ChromAmplitudeScore scores the instantaneous CHROM projection of one patch
func ChromAmplitudeScore(r, g, b float64, t Tuning) float64 {
	s := math.Abs(chromX(r, g) - chromY(r, g, b))
	return clamp01(s / t.PatchAmplitudeDivisor)
}

// NewPatchStats converts raw sums into means and scores. luma carries the sums from
// whichever path produced them; its Count is the sample count. ok is false for an
// empty patch.
func NewPatchStats(sums planes.PatchSums, luma planes.LumaSums, channel Channel, chrominance bool, t Tuning) (PatchStats, bool) {
	n := luma.Count
	if n <= 0 {
		return PatchStats{}, false
	}
	fn := float64(n)
	p := PatchStats{
		Luma:  luma,
		MeanY: luma.Sum / fn,
		MeanR: sums.SumR / fn,
		MeanG: sums.SumG / fn,
		MeanB: sums.SumB / fn,
	}

	switch channel {
	case ChannelRed:
		p.Value = p.MeanR
	case ChannelLuma:
		p.Value = p.MeanY
	default:
		p.Value = p.MeanG
	}
	p.Value = min(max(p.Value, 0), 255)

	p.Exposure = ExposureScore(p.MeanY, t)
	if chrominance {
		p.Amplitude = ChromAmplitudeScore(p.MeanR, p.MeanG, p.MeanB, t)
	}
	p.Confidence = clamp01(t.PatchExposureWeight*p.Exposure + (1-t.PatchExposureWeight)*p.Amplitude)
	p.Weight = max(p.Exposure, t.WeightFloor)
	return p, true
}

// FrameAggregate is the weight-normalized combination of all patches of one frame
type FrameAggregate struct {
	R, G, B, Y  float64
	Value       float64 // Mean-mode value
	PatchScore  float64 // Weighted patch confidence, NaN when no weight
	WeightTotal float64
	Patches     int

	SpatialMean float64
	SpatialStd  float64
	Contrast    float64
}

// Finite reports whether all four color aggregates can be pushed into history
func (a FrameAggregate) Finite() bool {
	return isFinite(a.R) && isFinite(a.G) && isFinite(a.B) && isFinite(a.Y)
}

type aggregator struct {
	weightTotal float64
	value       float64
	conf        float64
	r, g, b, y  float64
	patches     int

	spatialSum   float64
	spatialSumSq float64
	spatialN     float64
}

func (a *aggregator) add(p PatchStats) {
	w := p.Weight
	a.weightTotal += w
	a.value += w * p.Value
	a.conf += w * p.Confidence
	a.r += w * p.MeanR
	a.g += w * p.MeanG
	a.b += w * p.MeanB
	a.y += w * p.MeanY
	a.patches++

	a.spatialSum += p.Luma.Sum
	a.spatialSumSq += p.Luma.SumSq
	a.spatialN += float64(p.Luma.Count)
}

func (a *aggregator) result(t Tuning) FrameAggregate {
	out := FrameAggregate{
		R: nan(), G: nan(), B: nan(), Y: nan(),
		Value:       nan(),
		PatchScore:  nan(),
		WeightTotal: a.weightTotal,
		Patches:     a.patches,
		SpatialMean: nan(),
	}
	if a.weightTotal > 0 {
		out.R = a.r / a.weightTotal
		out.G = a.g / a.weightTotal
		out.B = a.b / a.weightTotal
		out.Y = a.y / a.weightTotal
		out.Value = a.value / a.weightTotal
		out.PatchScore = clamp01(a.conf / a.weightTotal)
	}
	if a.spatialN > 0 {
		out.SpatialMean = a.spatialSum / a.spatialN
		variance := a.spatialSumSq/a.spatialN - out.SpatialMean*out.SpatialMean
		if variance > 0 && !math.IsNaN(variance) {
			out.SpatialStd = math.Sqrt(variance)
		}
	}
	out.Contrast = clamp01(out.SpatialStd / t.ContrastDivisor)
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func nan() float64 { return math.NaN() }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
