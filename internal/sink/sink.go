// Package sink delivers the pulse stream to downstream consumers.
//
// Every sink receives PushSample (only for finite samples) followed by
// PushConfidence (every frame, with the frame timestamp) and joins the two calls
// into one Point.
package sink

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
)

var (
	// ErrClosed is returned by sinks used after Close
	ErrClosed = errors.New("sink: closed")
	// ErrBufferFull is returned when a non-blocking sink drops a point
	ErrBufferFull = errors.New("sink: buffer full")
)

// Sink is the downstream analyzer ingestion boundary
type Sink interface {
	PushSample(value, timestampSeconds float64) error
	PushConfidence(value, timestampSeconds float64) error
}

// Point is one frame of output
type Point struct {
	Timestamp  float64 // Seconds
	Value      float64 // NaN when the frame had no reliable sample
	Confidence float64
}

// HasValue reports whether the frame produced a sample
func (p Point) HasValue() bool {
	return !math.IsNaN(p.Value)
}

type pointJSON struct {
	Timestamp  float64  `json:"timestamp"`
	Sample     *float64 `json:"sample"`
	Confidence float64  `json:"confidence"`
}

// MarshalJSON writes an absent or non-finite sample as null
func (p Point) MarshalJSON() ([]byte, error) {
	out := pointJSON{Timestamp: p.Timestamp, Confidence: p.Confidence}
	if p.HasValue() && !math.IsInf(p.Value, 0) {
		v := p.Value
		out.Sample = &v
	}
	return json.Marshal(out)
}

// joiner pairs a PushSample call with the PushConfidence call that follows it
type joiner struct {
	mu      sync.Mutex
	pending Point
	has     bool
}

func (j *joiner) sample(value, ts float64) {
	j.mu.Lock()
	j.pending = Point{Timestamp: ts, Value: value}
	j.has = true
	j.mu.Unlock()
}

func (j *joiner) confidence(c, ts float64) Point {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.pending
	if !j.has {
		p = Point{Timestamp: ts, Value: math.NaN()}
	}
	p.Confidence = c
	j.has = false
	return p
}

// Multi delivers to every sink and joins their errors
type Multi []Sink

// Fanout returns a Multi over the non-nil sinks
func Fanout(sinks ...Sink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) PushSample(value, ts float64) error {
	var errs []error
	for _, s := range m {
		if err := s.PushSample(value, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PushConfidence(value, ts float64) error {
	var errs []error
	for _, s := range m {
		if err := s.PushConfidence(value, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
