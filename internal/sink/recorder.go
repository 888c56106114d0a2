package sink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// csvHeader is the first line of every recording
const csvHeader = "timestamp,sample,confidence\n"

// Recorder writes the pulse stream to CSV files while a recording is active.
// Outside a recording it accepts and discards points.
type Recorder struct {
	j joiner

	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	rowCount     uint64
	bytesWritten uint64
	dropped      uint64
	startTime    time.Time
	rowChan      chan Point
	wg           sync.WaitGroup
}

// NewRecorder creates a recorder writing into basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath: basePath,
		rowChan:  make(chan Point, 90), // 3 seconds at 30 fps
	}
}

// Start starts recording to a new file
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create recording dir: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405.000")
	filename := fmt.Sprintf("pulse_%s.csv", timestamp)
	path := filepath.Join(r.basePath, filename)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := bufio.NewWriter(file)
	n, err := w.WriteString(csvHeader)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	r.file = file
	r.w = w
	r.filename = filename
	r.recording = true
	r.rowCount = 0
	r.dropped = 0
	r.bytesWritten = uint64(n)
	r.startTime = time.Now()
	for len(r.rowChan) > 0 {
		<-r.rowChan
	}

	r.wg.Add(1)
	go r.writeRows()

	logger.Info("Recorder", "Recording started: %s", path)
	return nil
}

// Stop stops recording and flushes the file
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.w.Flush(); err != nil {
			r.file.Close()
			r.file = nil
			return fmt.Errorf("failed to flush file: %w", err)
		}
		if err := r.file.Sync(); err != nil {
			r.file.Close()
			r.file = nil
			return fmt.Errorf("failed to sync file: %w", err)
		}
		if err := r.file.Close(); err != nil {
			r.file = nil
			return fmt.Errorf("failed to close file: %w", err)
		}
		r.file = nil
		r.w = nil
	}

	logger.Info("Recorder", "Recording stopped: %s (%d rows, %d dropped)", r.filename, r.rowCount, r.dropped)
	return nil
}

func (r *Recorder) PushSample(value, ts float64) error {
	r.j.sample(value, ts)
	return nil
}

// PushConfidence completes the frame and queues it without blocking
func (r *Recorder) PushConfidence(value, ts float64) error {
	p := r.j.confidence(value, ts)

	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()
	if !recording {
		return nil
	}

	select {
	case r.rowChan <- p:
		return nil
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return ErrBufferFull
	}
}

// writeRows drains the queue into the file until recording stops
func (r *Recorder) writeRows() {
	defer r.wg.Done()

	for {
		r.mu.RLock()
		recording := r.recording
		r.mu.RUnlock()

		if !recording {
			for len(r.rowChan) > 0 {
				r.writeRow(<-r.rowChan)
			}
			return
		}

		select {
		case p := <-r.rowChan:
			r.writeRow(p)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *Recorder) writeRow(p Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}

	n, err := r.w.Write(appendRow(nil, p))
	if err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}
	r.bytesWritten += uint64(n)
	r.rowCount++
}

// appendRow formats one CSV row. A frame without a sample leaves the sample column empty.
func appendRow(b []byte, p Point) []byte {
	b = strconv.AppendFloat(b, p.Timestamp, 'f', 6, 64)
	b = append(b, ',')
	if p.HasValue() {
		b = strconv.AppendFloat(b, p.Value, 'g', -1, 64)
	}
	b = append(b, ',')
	b = strconv.AppendFloat(b, p.Confidence, 'f', 4, 64)
	return append(b, '\n')
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Status returns the current recording status
func (r *Recorder) Status() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		RowCount:     r.rowCount,
		Dropped:      r.dropped,
		BytesWritten: r.bytesWritten,
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		return r.Stop()
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	RowCount     uint64    `json:"row_count"`
	Dropped      uint64    `json:"dropped"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
