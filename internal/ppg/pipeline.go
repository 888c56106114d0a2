// Package ppg extracts one remote-photoplethysmography sample and a confidence value
// from every camera frame.
//
// A Pipeline owns all cross-frame state (history, DC/AGC, telemetry) for one
// measurement session. Process is safe to call from several goroutines, but calls are
// serialized; the numeric path never blocks on I/O.
package ppg

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/planes"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/telemetry"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

// Sink receives the output stream. Errors are logged and dropped by the pipeline.
type Sink interface {
	PushSample(value, timestampSeconds float64) error
	PushConfidence(value, timestampSeconds float64) error
}

// Observer is notified after every processed frame
type Observer interface {
	ObserveFrame(r *Result)
}

// Config wires a Pipeline
type Config struct {
	Tuning          Tuning
	HistoryCapacity int
	ParityInterval  int
	PerfWindow      int
	ReportInterval  int
	AGCLogInterval  uint64
	Sink            Sink     // Optional
	Observer        Observer // Optional
	Clock           func() time.Time
}

// DefaultConfig returns the reference configuration without a sink
func DefaultConfig() Config {
	return Config{
		Tuning:          DefaultTuning(),
		HistoryCapacity: HistoryCapacity,
		ParityInterval:  telemetry.DefaultParityInterval,
		PerfWindow:      telemetry.DefaultPerfWindow,
		ReportInterval:  telemetry.DefaultReportInterval,
		AGCLogInterval:  30,
		Clock:           time.Now,
	}
}

// Result is the outcome of one Process call
type Result struct {
	Sample     float64 // Final output, NaN when no reliable estimate
	Confidence float64 // Delivered confidence in [0, 1]
	Timestamp  float64 // Seconds

	Aggregate FrameAggregate
	Chrom     ChromEstimate
	Temporal  TemporalStats
	Quality   QualityScore
	Selection Selection

	PreAGC          float64
	AGCContribution float64
	AGC             AgcState

	HistoryLen  int
	Accelerated bool // At least one patch used the accelerated luma sums
	Fallbacks   int  // Patches where the accelerated path was requested but failed
	Parity      bool // A parity check ran on this frame
	SinkErrors  int  // Failed delivery calls
	Elapsed     time.Duration
	Err         error // Geometry failure or recovered panic
}

// Pipeline is one measurement session
type Pipeline struct {
	mu sync.Mutex

	cfg     Config
	session uuid.UUID
	history *History
	agc     *AGC
	parity  *telemetry.Parity
	perf    *telemetry.Perf
	frames  uint64

	lastFallbackWarn uint64 // Frame number of the last fallback warning, 0 for none
}

// New creates a Pipeline with fresh session state
func New(cfg Config) *Pipeline {
	if cfg.Tuning == (Tuning{}) {
		cfg.Tuning = DefaultTuning()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.AGCLogInterval == 0 {
		cfg.AGCLogInterval = 30
	}
	p := &Pipeline{cfg: cfg}
	p.resetLocked()
	return p
}

// Reset starts a new measurement session: history, AGC and telemetry are recreated
// and a new session id is issued.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pipeline) resetLocked() {
	p.session = uuid.New()
	p.history = NewHistory(p.cfg.HistoryCapacity)
	p.agc = NewAGC()
	p.parity = telemetry.NewParity(p.cfg.ParityInterval)
	p.perf = telemetry.NewPerf(p.cfg.PerfWindow, p.cfg.ReportInterval)
	p.frames = 0
	p.lastFallbackWarn = 0
}

// SetSink replaces the output sink; nil disables delivery
func (p *Pipeline) SetSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Sink = s
}

// SessionID identifies the current measurement session
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.String()
}

// Process runs the extraction for one frame. It never panics: geometry failures and
// unexpected runtime errors produce a NaN sample.
func (p *Pipeline) Process(frame *types.FrameDescriptor, params Params) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := p.safeProcess(frame, params.Normalize(), p.cfg.Clock())
	p.observe(res)
	return *res
}

// safeProcess converts a panic in the frame computation into a NaN result
func (p *Pipeline) safeProcess(frame *types.FrameDescriptor, params Params, start time.Time) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline", "Frame processing panic: %v\n%s", r, debug.Stack())
			res = &Result{Sample: math.NaN(), PreAGC: math.NaN(), Err: fmt.Errorf("ppg: frame processing panic: %v", r)}
		}
	}()

	out := p.process(frame, params, start)
	return &out
}

func (p *Pipeline) observe(res *Result) {
	if p.cfg.Observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Pipeline", "Observer panic: %v", r)
		}
	}()
	p.cfg.Observer.ObserveFrame(res)
}

func (p *Pipeline) process(frame *types.FrameDescriptor, params Params, start time.Time) Result {
	t := p.cfg.Tuning
	res := Result{Sample: math.NaN(), PreAGC: math.NaN()}

	if frame == nil {
		res.Err = roi.ErrInvalidGeometry
		return res
	}
	region, err := roi.Compute(frame.Width, frame.Height, params.ROI, params.Grid, params.Step)
	if err != nil {
		res.Err = err
		return res
	}
	p.frames++

	summer := planes.Select(params.Accelerated)
	parityDue := p.parity.Arm(params.PerformanceLogging && summer != nil)

	var agg aggregator
	for _, rect := range region.Patches {
		var luma planes.LumaSums
		accel := false
		if summer != nil {
			s, err := summer.SumLuma(&frame.Luma, rect, region.Stride)
			if err != nil {
				if res.Fallbacks == 0 {
					p.logFallback(err)
				}
				res.Fallbacks++
			} else {
				luma, accel = s, true
				res.Accelerated = true
			}
		}

		checkParity := parityDue && accel
		sums := planes.ReadPatch(frame, rect, region.Stride, !accel || checkParity)
		if !accel {
			luma = sums.Luma
		}
		if luma.Count <= 0 || sums.Count <= 0 {
			continue
		}
		if checkParity && sums.Luma.Count > 0 {
			p.parity.Record(math.Abs(luma.Mean() - sums.Luma.Mean()))
			parityDue = false
			res.Parity = true
		}

		stats, ok := NewPatchStats(sums, luma, params.Channel, params.Mode.Chrominance(), t)
		if ok {
			agg.add(stats)
		}
	}
	res.Aggregate = agg.result(t)
	a := res.Aggregate

	if a.Finite() {
		p.history.Push(Sample{R: a.R, G: a.G, B: a.B, Y: a.Y, V: a.Value})
		if p.history.Len() < t.MinChromSamples {
			p.agc.ReseedSignalDC()
		}
	}
	res.HistoryLen = p.history.Len()

	chromMode := params.Mode
	if chromMode != ModeChrom {
		chromMode = ModePOS
	}
	res.Chrom = EstimateChrom(p.history, chromMode, t)
	res.Temporal = ComputeTemporal(p.history, a.Value, t)
	gate := ExposureGate(p.history, t)
	res.Quality = ScoreQuality(a.PatchScore, gate, a.Contrast, res.Temporal, res.Chrom, t)
	res.Selection = SelectOutput(params, a.Value, res.Chrom, res.Quality, t)

	windowMean := res.Temporal.Mean
	if !isFinite(windowMean) && isFinite(a.Value) {
		windowMean = a.Value
	}
	dc := p.agc.TrackDC(windowMean, res.HistoryLen, t)
	meanC, chromC := PushComponents(a.Value, dc, res.Temporal.Std, res.Chrom, t)
	res.PreAGC = CombinePush(params.Mode, res.Selection, meanC, chromC)

	res.Sample = p.agc.Apply(res.PreAGC, params.AGC, t)
	res.AGC = p.agc.State()
	res.AGCContribution = Contribution(res.Sample, params.AGC.TargetRMS)
	if isFinite(res.Sample) {
		res.Confidence = clamp01(res.Selection.Confidence * res.AGCContribution)
	}

	res.Timestamp = frame.Timestamp.Seconds()
	if frame.Timestamp <= 0 {
		res.Timestamp = float64(start.UnixNano()) / 1e9
	}

	if p.frames%p.cfg.AGCLogInterval == 0 {
		logger.Debug("Pipeline", "AGC rms=%.4f gain=%.2f sample=%.4f conf=%.3f history=%d",
			res.AGC.RMS, res.AGC.Gain, res.Sample, res.Confidence, res.HistoryLen)
	}

	p.deliver(&res)

	res.Elapsed = p.cfg.Clock().Sub(start)
	if params.PerformanceLogging && p.perf.Record(res.Elapsed) {
		p.report(summer != nil)
	}
	return res
}

// fallbackWarnInterval is the minimum number of frames between fallback warnings
const fallbackWarnInterval = 300

// logFallback reports an accelerated-path failure. Ineligible buffers are expected
// for some camera layouts and only logged at debug level; native failures warn at
// most once every fallbackWarnInterval frames. It returns whether a warning was written.
func (p *Pipeline) logFallback(err error) bool {
	if errors.Is(err, planes.ErrIneligibleBuffer) {
		logger.Debug("Pipeline", "Accelerated luma sum skipped: %v", err)
		return false
	}
	if p.lastFallbackWarn != 0 && p.frames-p.lastFallbackWarn < fallbackWarnInterval {
		logger.Debug("Pipeline", "Accelerated luma sum fallback: %v", err)
		return false
	}
	p.lastFallbackWarn = p.frames
	logger.Warn("Pipeline", "Accelerated luma sum fallback: %v", err)
	return true
}

// deliver hands the sample and confidence to the sink. Delivery is best effort:
// errors and panics are counted in SinkErrors and never reach the frame result.
func (p *Pipeline) deliver(res *Result) {
	s := p.cfg.Sink
	if s == nil {
		return
	}
	if isFinite(res.Sample) {
		if !push("Sample", func() error { return s.PushSample(res.Sample, res.Timestamp) }) {
			res.SinkErrors++
		}
	}
	if !push("Confidence", func() error { return s.PushConfidence(res.Confidence, res.Timestamp) }) {
		res.SinkErrors++
	}
}

func push(what string, f func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("Pipeline", "%s delivery panic: %v", what, r)
			ok = false
		}
	}()
	if err := f(); err != nil {
		logger.Debug("Pipeline", "%s delivery dropped: %v", what, err)
		return false
	}
	return true
}

func (p *Pipeline) report(accelerated bool) {
	lat := p.perf.Summary()
	par := p.parity.Stats()
	state := "OFF"
	if accelerated {
		state = "ON"
	}
	logger.Info("Pipeline",
		"perf: frames=%d accel=%s p50=%.3fms p95=%.3fms diffMax=%.4f diffMean=%.4f samples=%d",
		lat.Frames, state,
		float64(lat.P50.Microseconds())/1000, float64(lat.P95.Microseconds())/1000,
		par.MaxDiff, par.MeanDiff, par.Samples)
	p.parity.ResetStats()
}

// ParityStats exposes the current parity accumulator
func (p *Pipeline) ParityStats() telemetry.ParityStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parity.Stats()
}

// Latency exposes the current latency percentiles
func (p *Pipeline) Latency() telemetry.LatencySummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perf.Summary()
}
