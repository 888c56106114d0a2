// Package planes reads luma and chroma samples out of camera frame planes.
//
// Every patch is read on the scalar path, which converts YCbCr to RGB per sampled
// pixel. Luma sum and sum-of-squares may instead come from a LumaSummer; the
// accelerated implementation must agree with the scalar one within floating-point
// tolerance.
package planes

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

// LumaSums are aggregate luma statistics for one patch
type LumaSums struct {
	Sum   float64
	SumSq float64
	Count int
}

// Mean returns Sum/Count, or 0 for an empty patch
func (s LumaSums) Mean() float64 {
	if s.Count <= 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// PatchSums are the raw accumulations for one patch on the scalar path
type PatchSums struct {
	Luma  LumaSums // Zero when the caller asked to skip luma accumulation
	SumR  float64
	SumG  float64
	SumB  float64
	Count int // Number of sampled pixels
}

// ToRGB applies the YCbCr to RGB transform, clamping each channel to [0, 255]
func ToRGB(y, cb, cr byte) (r, g, b float64) {
	yv := float64(y)
	cbv := float64(cb) - 128.0
	crv := float64(cr) - 128.0
	r = clamp255(yv + 1.402*crv)
	g = clamp255(yv - 0.344*cbv - 0.714*crv)
	b = clamp255(yv + 1.772*cbv)
	return r, g, b
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// ReadPatch samples rect of frame every stride pixels in both axes. Chroma is read at
// half resolution; missing chroma is treated as neutral (128). Luma sums are only
// accumulated when withLuma is set.
func ReadPatch(frame *types.FrameDescriptor, rect roi.Rect, stride int, withLuma bool) PatchSums {
	var out PatchSums
	if stride <= 0 || rect.Width() <= 0 || rect.Height() <= 0 {
		return out
	}

	luma := &frame.Luma
	hasChroma := frame.HasChroma()

	for y := rect.Y0; y < rect.Y1; y += stride {
		yRow := y * luma.RowStride
		uvY := y >> 1
		for x := rect.X0; x < rect.X1; x += stride {
			yv := luma.Data[yRow+x*luma.PixelStride]

			cb, cr := byte(128), byte(128)
			if hasChroma {
				uvX := x >> 1
				cb = frame.Cb.At(uvX, uvY)
				cr = frame.Cr.At(uvX, uvY)
			}
			r, g, b := ToRGB(yv, cb, cr)
			out.SumR += r
			out.SumG += g
			out.SumB += b
			out.Count++

			if withLuma {
				f := float64(yv)
				out.Luma.Sum += f
				out.Luma.SumSq += f * f
			}
		}
	}
	if withLuma {
		out.Luma.Count = out.Count
	}
	return out
}
