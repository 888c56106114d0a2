//go:build !cgo || !linux

package shm

import (
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

// Reader is unavailable without cgo on Linux
type Reader struct{}

// NewReader always fails on this platform
func NewReader(shmName string, wait time.Duration) (*Reader, error) {
	return nil, ErrUnavailable
}

func (r *Reader) Close() error { return nil }

func (r *Reader) ReadLatest() (*types.FrameDescriptor, error) {
	return nil, ErrUnavailable
}

func (r *Reader) WaitNewFrame(timeout time.Duration) error {
	return ErrUnavailable
}
