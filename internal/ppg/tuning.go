package ppg

// Tuning holds the empirically chosen constants of the extraction pipeline.
// Changing any of them is a tuning decision; the defaults reproduce the field-tested
// behavior.
type Tuning struct {
	// Patch exposure: ramps to 0 over ExposureBand below ExposureDark / above ExposureBright.
	ExposureDark   float64
	ExposureBright float64
	ExposureBand   float64
	WeightFloor    float64 // Minimum patch weight

	PatchAmplitudeDivisor float64 // |instantaneous CHROM| / divisor = patch amplitude score
	PatchExposureWeight   float64 // Patch confidence = w*exposure + (1-w)*amplitude
	ContrastDivisor       float64 // Spatial std / divisor = contrast score

	MinChromSamples      int
	MinTemporalSamples   int
	TemporalWindow       int
	TemporalDivisor      float64
	TemporalDefaultScore float64 // Temporal score before MinTemporalSamples exist

	MinGateSamples     int
	GateLowPercentile  float64
	GateHighPercentile float64
	GateBand           float64

	AmplitudeScoreDivisor     float64 // CHROM amplitude / divisor = amplitude score
	SpatialGateExposureWeight float64
	DynamicTemporalWeight     float64
	BasePatchWeight           float64
	ChromBaseWeight           float64
	BlendConfidenceWeight     float64

	ChromOffset float64 // CHROM output = offset + scale*pulse
	ChromScale  float64

	DCAlphaSettled float64 // Used once MinGateSamples exist
	DCAlphaWarmup  float64

	MeanGainTarget        float64
	ChromGainTarget       float64
	PushGainMax           float64
	MeanDenominatorScale  float64
	MeanDenominatorFloor  float64
	ChromDenominatorScale float64
	ChromDenominatorFloor float64
	PushClamp             float64

	SignalDCAlpha  float64
	MinRMSFraction float64
	MinRMSFloor    float64
	OutputClamp    float64
}

// DefaultTuning returns the field-tested constants
func DefaultTuning() Tuning {
	return Tuning{
		ExposureDark:   15,
		ExposureBright: 240,
		ExposureBand:   15,
		WeightFloor:    1e-6,

		PatchAmplitudeDivisor: 50,
		PatchExposureWeight:   0.7,
		ContrastDivisor:       12,

		MinChromSamples:      8,
		MinTemporalSamples:   6,
		TemporalWindow:       30,
		TemporalDivisor:      6,
		TemporalDefaultScore: 0.2,

		MinGateSamples:     16,
		GateLowPercentile:  0.1,
		GateHighPercentile: 0.9,
		GateBand:           20,

		AmplitudeScoreDivisor:     35,
		SpatialGateExposureWeight: 0.6,
		DynamicTemporalWeight:     0.7,
		BasePatchWeight:           0.3,
		ChromBaseWeight:           0.6,
		BlendConfidenceWeight:     0.7,

		ChromOffset: 128,
		ChromScale:  0.5,

		DCAlphaSettled: 0.03,
		DCAlphaWarmup:  0.06,

		MeanGainTarget:        12,
		ChromGainTarget:       18,
		PushGainMax:           6,
		MeanDenominatorScale:  60,
		MeanDenominatorFloor:  10,
		ChromDenominatorScale: 100,
		ChromDenominatorFloor: 15,
		PushClamp:             1.2,

		SignalDCAlpha:  0.02,
		MinRMSFraction: 0.1,
		MinRMSFloor:    0.001,
		OutputClamp:    0.6,
	}
}
