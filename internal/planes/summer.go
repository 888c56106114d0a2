package planes

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

var (
	// ErrAcceleratedUnavailable means the native routine is not built in or failed its self-check
	ErrAcceleratedUnavailable = errors.New("planes: accelerated path unavailable")
	// ErrIneligibleBuffer means the plane cannot be handed to the native routine
	ErrIneligibleBuffer = errors.New("planes: buffer not eligible for accelerated path")
)

// DisableEnv turns the accelerated path off for the whole process when set to a non-empty value
const DisableEnv = "PULSE_EXTRACTOR_NO_ACCEL"

// LumaSummer computes luma sum, sum-of-squares and sample count for one patch
type LumaSummer interface {
	Name() string
	SumLuma(plane *types.Plane, rect roi.Rect, stride int) (LumaSums, error)
}

// Scalar is the reference LumaSummer
type Scalar struct{}

// Name implements LumaSummer
func (Scalar) Name() string { return "scalar" }

// SumLuma implements LumaSummer
func (Scalar) SumLuma(plane *types.Plane, rect roi.Rect, stride int) (LumaSums, error) {
	if err := checkEligible(plane, rect, stride); err != nil {
		return LumaSums{}, err
	}
	var s LumaSums
	for y := rect.Y0; y < rect.Y1; y += stride {
		row := y * plane.RowStride
		for x := rect.X0; x < rect.X1; x += stride {
			v := float64(plane.Data[row+x*plane.PixelStride])
			s.Sum += v
			s.SumSq += v * v
			s.Count++
		}
	}
	return s, nil
}

// Accelerated hands whole patches to the native routine
type Accelerated struct{}

// Name implements LumaSummer
func (Accelerated) Name() string { return "accelerated" }

// SumLuma implements LumaSummer
func (Accelerated) SumLuma(plane *types.Plane, rect roi.Rect, stride int) (LumaSums, error) {
	if !Available() {
		return LumaSums{}, ErrAcceleratedUnavailable
	}
	if err := checkEligible(plane, rect, stride); err != nil {
		return LumaSums{}, err
	}
	sum, sumSq, err := nativeSumLuma(plane, rect, stride)
	if err != nil {
		return LumaSums{}, err
	}
	cols := roi.SampleCount(rect.Width(), stride)
	rows := roi.SampleCount(rect.Height(), stride)
	return LumaSums{Sum: float64(sum), SumSq: float64(sumSq), Count: cols * rows}, nil
}

func checkEligible(plane *types.Plane, rect roi.Rect, stride int) error {
	if stride <= 0 || plane.RowStride <= 0 || plane.PixelStride <= 0 {
		return fmt.Errorf("%w: stride=%d rowStride=%d pixelStride=%d",
			ErrIneligibleBuffer, stride, plane.RowStride, plane.PixelStride)
	}
	if !plane.Covers(rect.X0, rect.Y0, rect.Width(), rect.Height()) {
		return fmt.Errorf("%w: rect %+v outside %d-byte plane", ErrIneligibleBuffer, rect, len(plane.Data))
	}
	return nil
}

var (
	checkOnce sync.Once
	available bool
)

// Available reports whether the accelerated path can be used in this process. The
// first call checks the native routine against the scalar one; a failed check disables
// the path for the life of the process.
func Available() bool {
	checkOnce.Do(func() {
		available = selfCheck()
		if !available {
			logger.Warn("Planes", "Accelerated luma path unavailable; using scalar fallback")
		}
	})
	return available
}

func selfCheck() bool {
	if os.Getenv(DisableEnv) != "" || !nativeBuilt {
		return false
	}
	const w, h = 19, 7
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i * 37)
	}
	plane := &types.Plane{Data: data, RowStride: w, PixelStride: 1}
	rect := roi.Rect{X0: 1, Y0: 1, X1: w, Y1: h}

	want, _ := Scalar{}.SumLuma(plane, rect, 2)
	sum, sumSq, err := nativeSumLuma(plane, rect, 2)
	if err != nil {
		return false
	}
	return float64(sum) == want.Sum && float64(sumSq) == want.SumSq
}

// Select is the per-frame strategy policy: the accelerated summer when it is both
// requested and available, otherwise nil (luma comes from the scalar read).
func Select(requested bool) LumaSummer {
	if requested && Available() {
		return Accelerated{}
	}
	return nil
}
