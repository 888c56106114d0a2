package ppg

import "math"

// QualityScore holds the sub-scores and the per-mode confidences of one frame
type QualityScore struct {
	Exposure        float64 // Percentile exposure gate
	SpatialContrast float64
	Temporal        float64
	Amplitude       float64
	PatchScore      float64

	SpatialGate float64
	DynamicMix  float64
	Reliability float64

	MeanConfidence  float64
	ChromConfidence float64
}

// ScoreQuality fuses the sub-scores. patchScore may be NaN (no patch weight), in which
// case the exposure gate stands in for it.
func ScoreQuality(patchScore, exposureGate, contrast float64, temporal TemporalStats, chrom ChromEstimate, t Tuning) QualityScore {
	q := QualityScore{
		Exposure:        clamp01(exposureGate),
		SpatialContrast: clamp01(contrast),
		Temporal:        temporal.Score,
	}
	if !isFinite(q.Temporal) {
		q.Temporal = 0
	}
	if chrom.Valid {
		q.Amplitude = clamp01(chrom.Amplitude / t.AmplitudeScoreDivisor)
	}
	q.PatchScore = q.Exposure
	if isFinite(patchScore) {
		q.PatchScore = clamp01(patchScore)
	}

	wg := t.SpatialGateExposureWeight
	q.SpatialGate = clamp01(wg*q.Exposure + (1-wg)*q.SpatialContrast)
	wd := t.DynamicTemporalWeight
	q.DynamicMix = clamp01(wd*q.Temporal + (1-wd)*q.Amplitude)
	q.Reliability = math.Sqrt(clamp01(q.SpatialGate * q.DynamicMix))

	wb := t.BasePatchWeight
	base := clamp01(wb*q.PatchScore + (1-wb)*q.Reliability)
	q.MeanConfidence = base
	wc := t.ChromBaseWeight
	q.ChromConfidence = clamp01(wc*base + (1-wc)*q.DynamicMix)
	return q
}

// Selection is the chosen output value before DC removal and gain control
type Selection struct {
	Value       float64
	Confidence  float64
	BlendWeight float64 // Weight of the chrominance estimate when Blended
	Blended     bool
}

// SelectOutput picks the mean or chrominance estimate, or crossfades between them
// when auto blend is on.
func SelectOutput(p Params, meanValue float64, chrom ChromEstimate, q QualityScore, t Tuning) Selection {
	chromOK := chrom.Valid && isFinite(chrom.Value)
	meanOK := isFinite(meanValue)

	sel := Selection{Value: chrom.Value, Confidence: q.ChromConfidence}
	if p.Mode == ModeMean || !chromOK {
		sel = Selection{Value: meanValue, Confidence: q.MeanConfidence}
	}

	if p.Blend != BlendAuto || (!meanOK && !chromOK) {
		return sel
	}

	torch := 1.0
	if p.Torch {
		torch = 0.0
	}
	wc := t.BlendConfidenceWeight
	w := clamp01(wc*q.ChromConfidence + (1-wc)*torch)
	if !chromOK {
		w = 0
	}
	if !meanOK {
		w = 1
	}
	mv, cv := 0.0, 0.0
	if meanOK {
		mv = meanValue
	}
	if chromOK {
		cv = chrom.Value
	}
	return Selection{
		Value:       (1-w)*mv + w*cv,
		Confidence:  (1-w)*q.MeanConfidence + w*q.ChromConfidence,
		BlendWeight: w,
		Blended:     true,
	}
}
