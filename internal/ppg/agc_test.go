package ppg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSinusoid(a *AGC, p AGCParams, amplitude float64, n int) []float64 {
	tu := DefaultTuning()
	out := make([]float64, n)
	for i := range out {
		x := amplitude * math.Sin(2*math.Pi*float64(i)/30)
		out[i] = a.Apply(x, p, tu)
	}
	return out
}

func rms(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func TestAGCInitialState(t *testing.T) {
	s := NewAGC().State()
	assert.True(t, math.IsNaN(s.DC))
	assert.True(t, math.IsNaN(s.SignalDC))
	assert.Zero(t, s.RMS)
	assert.Equal(t, 1.0, s.Gain)
}

func TestAGCConvergesToTarget(t *testing.T) {
	p := DefaultParams().AGC
	a := NewAGC()
	out := runSinusoid(a, p, 0.01, 900)

	s := a.State()
	// Input RMS is 0.01/sqrt(2), so the gain settles near 2.83.
	assert.InDelta(t, 0.02/(0.01/math.Sqrt2), s.Gain, 0.5)
	assert.InDelta(t, p.TargetRMS, rms(out[len(out)-120:]), 0.006)
}

func TestAGCGainStaysBounded(t *testing.T) {
	p := DefaultParams().AGC

	loud := NewAGC()
	out := runSinusoid(loud, p, 0.1, 900)
	assert.InDelta(t, p.GainMin, loud.State().Gain, 0.01)
	assert.InDelta(t, 0.1/math.Sqrt2, loud.State().RMS, 0.015)
	for _, v := range out {
		require.LessOrEqual(t, math.Abs(v), 0.6)
	}

	quiet := NewAGC()
	runSinusoid(quiet, p, 1e-6, 900)
	g := quiet.State().Gain
	assert.GreaterOrEqual(t, g, p.GainMin)
	assert.LessOrEqual(t, g, p.GainMax)
}

func TestAGCDisabledOnlyRemovesBaseline(t *testing.T) {
	tu := DefaultTuning()
	p := DefaultParams().AGC
	p.Enabled = false
	a := NewAGC()

	assert.Equal(t, 0.0, a.Apply(0.3, p, tu), "first sample seeds the baseline")
	v := a.Apply(0.5, p, tu)
	assert.InDelta(t, 0.2*(1-tu.SignalDCAlpha), v, 1e-12)
	assert.Equal(t, 1.0, a.State().Gain)
	assert.Zero(t, a.State().RMS)
}

func TestAGCClampsOutput(t *testing.T) {
	tu := DefaultTuning()
	p := DefaultParams().AGC
	p.Enabled = false
	a := NewAGC()
	a.Apply(-1.2, p, tu)
	assert.Equal(t, tu.OutputClamp, a.Apply(1.2, p, tu))
}

func TestAGCIgnoresNonFiniteInput(t *testing.T) {
	tu := DefaultTuning()
	p := DefaultParams().AGC
	a := NewAGC()
	a.Apply(0.1, p, tu)
	before := a.State()

	assert.True(t, math.IsNaN(a.Apply(math.NaN(), p, tu)))
	assert.True(t, math.IsNaN(a.Apply(math.Inf(1), p, tu)))
	after := a.State()
	assert.True(t, math.IsNaN(before.DC))
	assert.True(t, math.IsNaN(after.DC))
	assert.Equal(t, before.SignalDC, after.SignalDC)
	assert.Equal(t, before.RMS, after.RMS)
	assert.Equal(t, before.Gain, after.Gain)
}

func TestReseedSignalDC(t *testing.T) {
	tu := DefaultTuning()
	p := DefaultParams().AGC
	p.Enabled = false
	a := NewAGC()
	a.Apply(0.4, p, tu)
	a.ReseedSignalDC()
	assert.Equal(t, 0.0, a.Apply(-0.3, p, tu))
	assert.Equal(t, -0.3, a.State().SignalDC)
}

func TestTrackDC(t *testing.T) {
	tu := DefaultTuning()
	a := NewAGC()

	assert.Equal(t, 100.0, a.TrackDC(100, 1, tu), "first finite mean seeds the baseline")
	assert.InDelta(t, 100+tu.DCAlphaWarmup*10, a.TrackDC(110, 2, tu), 1e-12)

	prev := a.State().DC
	assert.InDelta(t, prev+tu.DCAlphaSettled*(120-prev), a.TrackDC(120, tu.MinGateSamples, tu), 1e-12)

	prev = a.State().DC
	assert.Equal(t, prev, a.TrackDC(math.NaN(), 40, tu))
}

func TestPushComponents(t *testing.T) {
	tu := DefaultTuning()
	chrom := ChromEstimate{Valid: true, Value: 138, Amplitude: 9}

	meanC, chromC := PushComponents(106, 100, 2, chrom, tu)
	// gainMean = min(12/2, 6) = 6, denominator = max(10, 60/6) = 10
	assert.InDelta(t, 0.6, meanC, 1e-12)
	// gainChrom = 18/9 = 2, denominator = max(15, 100/2) = 50
	assert.InDelta(t, 0.2, chromC, 1e-12)

	meanC, chromC = PushComponents(200, 100, 0, ChromEstimate{Value: math.NaN()}, tu)
	// Zero temporal std: gain 6, denominator 10, clamped at the push limit.
	assert.Equal(t, tu.PushClamp, meanC)
	assert.True(t, math.IsNaN(chromC))

	meanC, _ = PushComponents(math.NaN(), 100, 1, chrom, tu)
	assert.True(t, math.IsNaN(meanC))
}

func TestCombinePush(t *testing.T) {
	assert.Equal(t, 0.1, CombinePush(ModeMean, Selection{}, 0.1, 0.3))
	assert.Equal(t, 0.3, CombinePush(ModeChrom, Selection{}, 0.1, 0.3))
	assert.True(t, math.IsNaN(CombinePush(ModePOS, Selection{}, 0.1, math.NaN())))

	blended := Selection{Blended: true, BlendWeight: 0.25}
	assert.InDelta(t, 0.75*0.1+0.25*0.3, CombinePush(ModeMean, blended, 0.1, 0.3), 1e-12)
	assert.InDelta(t, 0.075, CombinePush(ModeMean, blended, 0.1, math.NaN()), 1e-12)
}

func TestContribution(t *testing.T) {
	assert.Equal(t, 0.5, Contribution(-0.01, 0.02))
	assert.Equal(t, 1.0, Contribution(0.5, 0.02))
	assert.Zero(t, Contribution(math.NaN(), 0.02))
	assert.Zero(t, Contribution(0.1, 0))
}
