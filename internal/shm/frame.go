// Package shm reads NV12 camera frames from the capture daemon's shared memory ring.
package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

const (
	// DefaultName is the capture daemon's frame ring
	DefaultName = "/pet_camera_frames"

	// Buffer constants matching shared_memory.h
	RingBufferSize = 30
	MaxFrameSize   = 1920 * 1080 * 3 / 2
)

var (
	ErrNotOpen     = errors.New("shm: shared memory not open")
	ErrTimeout     = errors.New("shm: timeout")
	ErrUnavailable = errors.New("shm: shared memory support not built")
)

// FrameInfo is the per-frame header written by the capture daemon
type FrameInfo struct {
	FrameNumber uint64
	Timestamp   time.Time
	CameraID    int
	Width       int
	Height      int
	Format      int
	Brightness  float32 // Y-plane average reported by the ISP
	Lux         uint32
}

// newFrame wraps a copied frame payload. Only NV12 frames are usable by the pipeline;
// other formats return nil without error. The descriptor timestamp is Unix time.
func newFrame(info FrameInfo, data []byte) (*types.FrameDescriptor, error) {
	if info.Format != types.FormatNV12 {
		return nil, nil
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("shm: frame %d has invalid size %dx%d", info.FrameNumber, info.Width, info.Height)
	}
	want := info.Width * info.Height * 3 / 2
	if len(data) < want {
		return nil, fmt.Errorf("shm: frame %d truncated: %d bytes, want %d", info.FrameNumber, len(data), want)
	}

	var ts time.Duration
	if !info.Timestamp.IsZero() {
		ts = time.Duration(info.Timestamp.UnixNano())
	}
	return types.NewNV12Frame(data[:want], info.Width, info.Height, ts), nil
}

// waitError maps a negative errno from the semaphore wait
func waitError(result int) error {
	if result == 0 {
		return nil
	}
	errNum := -result

	switch errNum {
	case 110: // ETIMEDOUT
		return ErrTimeout
	case 22: // EINVAL
		return fmt.Errorf("shm: invalid argument (errno %d)", errNum)
	case 4: // EINTR
		return fmt.Errorf("shm: interrupted (errno %d)", errNum)
	default:
		return fmt.Errorf("shm: semaphore wait failed (errno %d)", errNum)
	}
}
