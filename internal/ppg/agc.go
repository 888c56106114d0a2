package ppg

import "math"

// AgcState is a snapshot of the persistent smoothing state
type AgcState struct {
	DC       float64 // Baseline of the mean-mode value
	SignalDC float64 // Baseline of the pre-AGC signal
	RMS      float64
	Gain     float64
}

// AGC owns the DC trackers and the adaptive gain. It lives as long as the pipeline
// instance and is only reset when a new measurement session starts.
type AGC struct {
	dc       float64
	signalDC float64
	rms      float64
	gain     float64
}

// NewAGC returns an AGC in its initial state
func NewAGC() *AGC {
	a := &AGC{}
	a.Reset()
	return a
}

// Reset returns every estimate to its initial value
func (a *AGC) Reset() {
	a.dc = math.NaN()
	a.signalDC = math.NaN()
	a.rms = 0
	a.gain = 1
}

// State returns a snapshot
func (a *AGC) State() AgcState {
	return AgcState{DC: a.dc, SignalDC: a.signalDC, RMS: a.rms, Gain: a.gain}
}

// ReseedSignalDC drops the signal baseline so that it restarts from the next input
func (a *AGC) ReseedSignalDC() {
	a.signalDC = math.NaN()
}

// TrackDC moves the value baseline toward windowMean. historyLen selects the faster
// warm-up rate until MinGateSamples exist.
func (a *AGC) TrackDC(windowMean float64, historyLen int, t Tuning) float64 {
	if !isFinite(a.dc) && isFinite(windowMean) {
		a.dc = windowMean
	}
	prev := a.dc
	if !isFinite(prev) {
		prev = windowMean
	}
	alpha := t.DCAlphaWarmup
	if historyLen >= t.MinGateSamples {
		alpha = t.DCAlphaSettled
	}
	next := prev
	if isFinite(windowMean) {
		next = prev + alpha*(windowMean-prev)
	}
	a.dc = next
	return next
}

// PushComponents normalizes the mean and chrominance estimates into the pre-AGC range.
// Either component is NaN when its input is unavailable.
func PushComponents(meanValue, dc, temporalStd float64, chrom ChromEstimate, t Tuning) (meanC, chromC float64) {
	meanC, chromC = math.NaN(), math.NaN()

	temporalBase := 1.0
	if isFinite(temporalStd) && temporalStd > 0 {
		temporalBase = temporalStd
	}
	gainMean := clamp(t.MeanGainTarget/temporalBase, 1, t.PushGainMax)
	meanDen := max(t.MeanDenominatorFloor, t.MeanDenominatorScale/gainMean)
	if isFinite(meanValue) && isFinite(dc) {
		meanC = clamp((meanValue-dc)/meanDen, -t.PushClamp, t.PushClamp)
	}

	chromBase := 1.0
	if isFinite(chrom.Amplitude) && chrom.Amplitude > 0 {
		chromBase = chrom.Amplitude
	}
	gainChrom := clamp(t.ChromGainTarget/chromBase, 1, t.PushGainMax)
	chromDen := max(t.ChromDenominatorFloor, t.ChromDenominatorScale/gainChrom)
	if chrom.Valid && isFinite(chrom.Value) {
		chromC = clamp((chrom.Value-t.ChromOffset)/chromDen, -t.PushClamp, t.PushClamp)
	}
	return meanC, chromC
}

// CombinePush selects the push component matching the active mode, or blends them
// with the selection's weight.
func CombinePush(mode Mode, sel Selection, meanC, chromC float64) float64 {
	switch {
	case sel.Blended:
		mc, cc := meanC, chromC
		if !isFinite(mc) {
			mc = 0
		}
		if !isFinite(cc) {
			cc = 0
		}
		return (1-sel.BlendWeight)*mc + sel.BlendWeight*cc
	case mode.Chrominance():
		return chromC
	default:
		return meanC
	}
}

// Apply removes the signal baseline, applies gain control when enabled and clamps the
// result to the output range. Non-finite input yields NaN and leaves the state alone.
func (a *AGC) Apply(x float64, p AGCParams, t Tuning) float64 {
	if !isFinite(x) {
		return math.NaN()
	}
	if isFinite(a.signalDC) {
		a.signalDC += t.SignalDCAlpha * (x - a.signalDC)
	} else {
		a.signalDC = x
	}
	out := x - a.signalDC

	if p.Enabled {
		prevSq := math.Abs(out)
		if isFinite(a.rms) {
			prevSq = a.rms * a.rms
		}
		sq := (1-p.AlphaRMS)*prevSq + p.AlphaRMS*out*out
		a.rms = math.Sqrt(max(sq, 0))

		floor := max(p.TargetRMS*t.MinRMSFraction, t.MinRMSFloor)
		desired := clamp(p.TargetRMS/max(a.rms, floor), p.GainMin, p.GainMax)
		if isFinite(a.gain) {
			a.gain = (1-p.AlphaGain)*a.gain + p.AlphaGain*desired
		} else {
			a.gain = desired
		}
		out *= a.gain
	}
	return clamp(out, -t.OutputClamp, t.OutputClamp)
}

// Contribution is the AGC-side confidence of an output sample
func Contribution(sample, targetRMS float64) float64 {
	if !isFinite(sample) || targetRMS <= 0 {
		return 0
	}
	return min(1, math.Abs(sample)/targetRMS)
}
