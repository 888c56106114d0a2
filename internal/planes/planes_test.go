package planes

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

func checkerboard(w, h int) []byte {
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/3+y/3)%2 == 0 {
				data[y*w+x] = 250
			} else {
				data[y*w+x] = 12
			}
		}
	}
	return data
}

func gradient(w, h int) []byte {
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = byte((x*255/max(w-1, 1) + y) % 256)
		}
	}
	return data
}

func TestToRGBNeutralChroma(t *testing.T) {
	r, g, b := ToRGB(200, 128, 128)
	assert.Equal(t, 200.0, r)
	assert.Equal(t, 200.0, g)
	assert.Equal(t, 200.0, b)
}

func TestToRGBClamps(t *testing.T) {
	r, g, b := ToRGB(250, 255, 255)
	assert.Equal(t, 255.0, r)
	assert.GreaterOrEqual(t, g, 0.0)
	assert.Equal(t, 255.0, b)

	r, _, b = ToRGB(5, 0, 0)
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 0.0, b)
}

func TestReadPatchLumaOnly(t *testing.T) {
	frame := types.NewLumaFrame(gradient(32, 16), 32, 16, 0)
	rect := roi.Rect{X0: 4, Y0: 2, X1: 20, Y1: 12}

	got := ReadPatch(frame, rect, 2, true)
	want, err := Scalar{}.SumLuma(&frame.Luma, rect, 2)
	require.NoError(t, err)

	assert.Equal(t, want, got.Luma)
	assert.Equal(t, want.Count, got.Count)
	// Neutral chroma: RGB equals luma.
	assert.InDelta(t, want.Sum, got.SumR, 1e-9)
	assert.InDelta(t, want.Sum, got.SumG, 1e-9)
	assert.InDelta(t, want.Sum, got.SumB, 1e-9)
}

func TestReadPatchSkipsLuma(t *testing.T) {
	frame := types.NewLumaFrame(gradient(16, 16), 16, 16, 0)
	got := ReadPatch(frame, roi.Rect{X1: 16, Y1: 16}, 1, false)
	assert.Equal(t, LumaSums{}, got.Luma)
	assert.Equal(t, 256, got.Count)
}

func TestReadPatchNV12Chroma(t *testing.T) {
	const w, h = 8, 4
	data := make([]byte, w*h+w*h/2)
	for i := 0; i < w*h; i++ {
		data[i] = 100
	}
	uv := data[w*h:]
	for i := 0; i < len(uv); i += 2 {
		uv[i] = 128   // Cb
		uv[i+1] = 178 // Cr: +50
	}
	frame := types.NewNV12Frame(data, w, h, 0)
	require.True(t, frame.HasChroma())

	got := ReadPatch(frame, roi.Rect{X1: w, Y1: h}, 1, true)
	n := float64(got.Count)
	assert.InDelta(t, 100+1.402*50, got.SumR/n, 1e-9)
	assert.InDelta(t, 100-0.714*50, got.SumG/n, 1e-9)
	assert.InDelta(t, 100.0, got.SumB/n, 1e-9)
}

func TestScalarRejectsIneligible(t *testing.T) {
	plane := &types.Plane{Data: make([]byte, 10), RowStride: 10, PixelStride: 1}
	_, err := Scalar{}.SumLuma(plane, roi.Rect{X1: 10, Y1: 2}, 1)
	assert.ErrorIs(t, err, ErrIneligibleBuffer)

	_, err = Scalar{}.SumLuma(plane, roi.Rect{X1: 5, Y1: 1}, 0)
	assert.ErrorIs(t, err, ErrIneligibleBuffer)
}

func TestSelectHonorsRequest(t *testing.T) {
	assert.Nil(t, Select(false))
	if Available() {
		assert.Equal(t, "accelerated", Select(true).Name())
	} else {
		assert.Nil(t, Select(true))
	}
}

func TestAcceleratedMatchesScalar(t *testing.T) {
	if !Available() {
		t.Skip("accelerated luma path not available in this build")
	}

	patterns := map[string][]byte{
		"checkerboard": checkerboard(97, 61),
		"gradient":     gradient(97, 61),
	}
	rects := []roi.Rect{
		{X0: 0, Y0: 0, X1: 97, Y1: 61},
		{X0: 10, Y0: 5, X1: 43, Y1: 29},
		{X0: 3, Y0: 3, X1: 4, Y1: 4},
		{X0: 50, Y0: 20, X1: 97, Y1: 61},
	}

	for name, data := range patterns {
		plane := &types.Plane{Data: data, RowStride: 97, PixelStride: 1}
		for _, stride := range []int{1, 2, 4, 8} {
			for _, rect := range rects {
				t.Run(fmt.Sprintf("%s/stride%d/%dx%d", name, stride, rect.Width(), rect.Height()), func(t *testing.T) {
					want, err := Scalar{}.SumLuma(plane, rect, stride)
					require.NoError(t, err)
					got, err := Accelerated{}.SumLuma(plane, rect, stride)
					require.NoError(t, err)

					assert.Equal(t, want.Count, got.Count)
					assertRel(t, want.Sum, got.Sum)
					assertRel(t, want.SumSq, got.SumSq)
				})
			}
		}
	}
}

func TestAcceleratedHonorsPixelStride(t *testing.T) {
	if !Available() {
		t.Skip("accelerated luma path not available in this build")
	}
	// Interleaved plane: luma at even offsets, noise at odd offsets.
	const w, h = 24, 10
	data := make([]byte, 2*w*h)
	for i := range data {
		if i%2 == 0 {
			data[i] = byte(i % 200)
		} else {
			data[i] = 255
		}
	}
	plane := &types.Plane{Data: data, RowStride: 2 * w, PixelStride: 2}
	rect := roi.Rect{X0: 1, Y0: 1, X1: w, Y1: h}

	want, err := Scalar{}.SumLuma(plane, rect, 3)
	require.NoError(t, err)
	got, err := Accelerated{}.SumLuma(plane, rect, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func assertRel(t *testing.T, want, got float64) {
	t.Helper()
	if want == 0 {
		assert.Equal(t, want, got)
		return
	}
	assert.LessOrEqual(t, math.Abs(want-got)/math.Abs(want), 1e-6, "want %v got %v", want, got)
}
