//go:build !cgo

package planes

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

const nativeBuilt = false

func nativeSumLuma(*types.Plane, roi.Rect, int) (uint64, uint64, error) {
	return 0, 0, ErrAcceleratedUnavailable
}
