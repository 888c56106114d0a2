package ppg

import (
	"math"
	"sync"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
)

// Channel selects which raw channel feeds the mean-mode value
type Channel string

const (
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelLuma  Channel = "luma"
)

// Mode selects the pulse extraction method
type Mode string

const (
	ModeMean  Mode = "mean"
	ModeChrom Mode = "chrom"
	ModePOS   Mode = "pos"
)

// Chrominance reports whether the mode uses the CHROM/POS estimate as its output
func (m Mode) Chrominance() bool {
	return m == ModeChrom || m == ModePOS
}

// Blend selects how the mean and chrominance estimates are combined
type Blend string

const (
	BlendOff  Blend = "off"
	BlendAuto Blend = "auto"
)

// AGCParams are the adaptive gain control tunables
type AGCParams struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	TargetRMS float64 `yaml:"target_rms" json:"target_rms"`
	AlphaRMS  float64 `yaml:"alpha_rms" json:"alpha_rms"`
	AlphaGain float64 `yaml:"alpha_gain" json:"alpha_gain"`
	GainMin   float64 `yaml:"gain_min" json:"gain_min"`
	GainMax   float64 `yaml:"gain_max" json:"gain_max"`
}

// Params is the per-frame configuration. It is re-read on every call, so callers
// may change any field between frames.
type Params struct {
	ROI                float64   `yaml:"roi" json:"roi"`         // Fraction of width/height, clamped to [0.2, 0.6]
	Channel            Channel   `yaml:"channel" json:"channel"` // red | green | luma
	Mode               Mode      `yaml:"mode" json:"mode"`       // mean | chrom | pos
	Blend              Blend     `yaml:"blend" json:"blend"`     // off | auto
	Torch              bool      `yaml:"torch" json:"torch"`     // Bright-light hint, biases auto blend toward the mean estimate
	Grid               int       `yaml:"grid" json:"grid"`       // Patches per side, clamped to [1, 3]
	Step               int       `yaml:"step" json:"step"`       // Sampling stride, clamped to [1, 8]
	AGC                AGCParams `yaml:"agc" json:"agc"`
	Accelerated        bool      `yaml:"accelerated" json:"accelerated"`
	PerformanceLogging bool      `yaml:"performance_logging" json:"performance_logging"`
}

// Defaults
const (
	DefaultROI       = 0.4
	DefaultGrid      = 1
	DefaultStep      = 2
	DefaultTargetRMS = 0.02
	DefaultAlphaRMS  = 0.05
	DefaultAlphaGain = 0.1
	DefaultGainMin   = 0.5
	DefaultGainMax   = 20.0
)

// DefaultParams returns the parameters used when the host supplies none
func DefaultParams() Params {
	return Params{
		ROI:     DefaultROI,
		Channel: ChannelGreen,
		Mode:    ModeMean,
		Blend:   BlendOff,
		Grid:    DefaultGrid,
		Step:    DefaultStep,
		AGC: AGCParams{
			Enabled:   true,
			TargetRMS: DefaultTargetRMS,
			AlphaRMS:  DefaultAlphaRMS,
			AlphaGain: DefaultAlphaGain,
			GainMin:   DefaultGainMin,
			GainMax:   DefaultGainMax,
		},
		Accelerated: true,
	}
}

// Normalize returns a copy with every field clamped or reset to a usable value.
// Caller-supplied bounds are never trusted.
func (p Params) Normalize() Params {
	p.ROI = roi.ClampFraction(p.ROI)
	p.Grid = roi.ClampGrid(p.Grid)
	p.Step = roi.ClampStride(p.Step)

	switch p.Channel {
	case ChannelRed, ChannelGreen, ChannelLuma:
	default:
		p.Channel = ChannelGreen
	}
	switch p.Mode {
	case ModeMean, ModeChrom, ModePOS:
	default:
		p.Mode = ModeMean
	}
	if p.Blend != BlendAuto {
		p.Blend = BlendOff
	}

	a := &p.AGC
	a.TargetRMS = positiveOr(a.TargetRMS, DefaultTargetRMS)
	a.AlphaRMS = unitOr(a.AlphaRMS, DefaultAlphaRMS)
	a.AlphaGain = unitOr(a.AlphaGain, DefaultAlphaGain)
	a.GainMin = positiveOr(a.GainMin, DefaultGainMin)
	a.GainMax = positiveOr(a.GainMax, DefaultGainMax)
	if a.GainMin > a.GainMax {
		a.GainMin, a.GainMax = a.GainMax, a.GainMin
	}
	return p
}

func positiveOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return v
}

func unitOr(v, def float64) float64 {
	if math.IsNaN(v) || v <= 0 || v > 1 {
		return def
	}
	return v
}

// ParamStore holds the live parameters shared by the control surface and the frame loop
type ParamStore struct {
	mu sync.RWMutex
	p  Params
}

// NewParamStore stores the normalized p
func NewParamStore(p Params) *ParamStore {
	return &ParamStore{p: p.Normalize()}
}

// Load returns the current parameters
func (s *ParamStore) Load() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Store replaces the parameters with the normalized p and returns what was stored
func (s *ParamStore) Store(p Params) Params {
	p = p.Normalize()
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
	return p
}
