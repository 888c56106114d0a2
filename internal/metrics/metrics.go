package metrics

import (
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/telemetry"
)

// Gauge is a float64 stored in an atomic word
type Gauge struct {
	bits atomic.Uint64
}

func (g *Gauge) Store(v float64) { g.bits.Store(math.Float64bits(v)) }
func (g *Gauge) Load() float64   { return math.Float64frombits(g.bits.Load()) }

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64
	NaNOutputs      atomic.Uint64

	// Error counters
	ReadErrors    atomic.Uint64
	ProcessErrors atomic.Uint64
	SinkErrors    atomic.Uint64

	// Accelerated path
	AcceleratedFrames atomic.Uint64
	Fallbacks         atomic.Uint64
	ParityChecks      atomic.Uint64

	// Last frame state
	LastSample     Gauge
	LastConfidence Gauge
	AGCRMS         Gauge
	AGCGain        Gauge
	HistoryLen     atomic.Uint64
	ProcessLatency Gauge // Seconds

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingRows   atomic.Uint64

	mu      sync.RWMutex
	latency func() telemetry.LatencySummary
	parity  func() telemetry.ParityStats

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.LastSample.Store(math.NaN())
	m.registerPrometheusMetrics()
	return m
}

// TrackPipeline exposes the pipeline's latency window and parity accumulator
func (m *Metrics) TrackPipeline(p *ppg.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = p.Latency
	m.parity = p.ParityStats
}

func (m *Metrics) latencySummary() telemetry.LatencySummary {
	m.mu.RLock()
	f := m.latency
	m.mu.RUnlock()
	if f == nil {
		return telemetry.LatencySummary{}
	}
	return f()
}

func (m *Metrics) parityStats() telemetry.ParityStats {
	m.mu.RLock()
	f := m.parity
	m.mu.RUnlock()
	if f == nil {
		return telemetry.ParityStats{}
	}
	return f()
}

// ObserveFrame records the outcome of one Process call
func (m *Metrics) ObserveFrame(r *ppg.Result) {
	if r.Err != nil {
		m.ProcessErrors.Add(1)
		m.NaNOutputs.Add(1)
		return
	}
	m.FramesProcessed.Add(1)
	if math.IsNaN(r.Sample) {
		m.NaNOutputs.Add(1)
	}
	if r.Accelerated {
		m.AcceleratedFrames.Add(1)
	}
	if r.Parity {
		m.ParityChecks.Add(1)
	}
	m.Fallbacks.Add(uint64(r.Fallbacks))
	m.SinkErrors.Add(uint64(r.SinkErrors))

	m.LastSample.Store(r.Sample)
	m.LastConfidence.Store(r.Confidence)
	m.AGCRMS.Store(r.AGC.RMS)
	m.AGCGain.Store(r.AGC.Gain)
	m.HistoryLen.Store(uint64(r.HistoryLen))
	m.ProcessLatency.Store(r.Elapsed.Seconds())
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		f,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Frames
	m.counter("pulse_frames_read_total", "Total frames read from shared memory", &m.FramesRead)
	m.counter("pulse_frames_processed_total", "Total frames processed", &m.FramesProcessed)
	m.counter("pulse_frames_dropped_total", "Frames dropped because processing fell behind", &m.FramesDropped)
	m.counter("pulse_nan_outputs_total", "Frames without a reliable sample", &m.NaNOutputs)

	// Errors
	m.counter("pulse_read_errors_total", "Total shared memory read errors", &m.ReadErrors)
	m.counter("pulse_process_errors_total", "Frames rejected for geometry or recovered panics", &m.ProcessErrors)
	m.counter("pulse_sink_errors_total", "Failed sink delivery calls", &m.SinkErrors)

	// Accelerated path
	m.counter("pulse_accelerated_frames_total", "Frames that used the accelerated luma sums", &m.AcceleratedFrames)
	m.counter("pulse_accelerated_fallbacks_total", "Patches that fell back to the scalar luma sums", &m.Fallbacks)
	m.counter("pulse_parity_checks_total", "Accelerated/scalar parity checks", &m.ParityChecks)
	m.gauge("pulse_parity_max_diff", "Max luma mean divergence since the last report",
		func() float64 { return m.parityStats().MaxDiff })
	m.gauge("pulse_parity_mean_diff", "Mean luma mean divergence since the last report",
		func() float64 { return m.parityStats().MeanDiff })

	// Output
	m.gauge("pulse_last_sample", "Most recent output sample (NaN when unreliable)", m.LastSample.Load)
	m.gauge("pulse_last_confidence", "Most recent delivered confidence", m.LastConfidence.Load)
	m.gauge("pulse_agc_rms", "AGC running RMS", m.AGCRMS.Load)
	m.gauge("pulse_agc_gain", "AGC smoothed gain", m.AGCGain.Load)
	m.counter("pulse_history_len", "Rolling history depth", &m.HistoryLen)

	// Latency
	m.gauge("pulse_process_latency_seconds", "Latency of the most recent frame", m.ProcessLatency.Load)
	m.gauge("pulse_latency_p50_seconds", "p50 frame latency over the window",
		func() float64 { return m.latencySummary().P50.Seconds() })
	m.gauge("pulse_latency_p95_seconds", "p95 frame latency over the window",
		func() float64 { return m.latencySummary().P95.Seconds() })

	// Recording
	m.counter("pulse_recording_active", "Recording active (0=inactive, 1=active)", &m.RecordingActive)
	m.counter("pulse_recording_rows", "Rows written to the current recording", &m.RecordingRows)
}

// UpdateRecording mirrors the recorder state
func (m *Metrics) UpdateRecording(active bool, rows uint64) {
	var v uint64
	if active {
		v = 1
	}
	m.RecordingActive.Store(v)
	m.RecordingRows.Store(rows)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}
