//go:build cgo

package planes

/*
#cgo CFLAGS: -O3

#include <stdint.h>
#include <stddef.h>

// Sum and sum of squares of a strided 8-bit plane region.
// Returns 0 on success, -1 on bad arguments or out-of-bounds access.
static int sum_luma(
    const uint8_t* data,
    size_t len,
    int base_offset,
    int row_stride,
    int pixel_stride,
    int width,
    int height,
    int step,
    uint64_t* out_sum,
    uint64_t* out_sum_sq) {
    if (data == NULL || width <= 0 || height <= 0 || step <= 0 ||
        row_stride <= 0 || pixel_stride <= 0 || base_offset < 0) {
        return -1;
    }
    const int cols = (width + step - 1) / step;
    const int rows = (height + step - 1) / step;
    const size_t last = (size_t)base_offset +
        (size_t)(rows - 1) * (size_t)step * (size_t)row_stride +
        (size_t)(cols - 1) * (size_t)step * (size_t)pixel_stride;
    if (last >= len) {
        return -1;
    }

    const size_t inc = (size_t)step * (size_t)pixel_stride;
    uint64_t sum = 0;
    uint64_t sum_sq = 0;
    for (int r = 0; r < rows; ++r) {
        const uint8_t* p = data + base_offset + (size_t)r * (size_t)step * (size_t)row_stride;
        uint32_t s0 = 0, s1 = 0, s2 = 0, s3 = 0;
        uint64_t q0 = 0, q1 = 0, q2 = 0, q3 = 0;
        int c = 0;
        for (; c + 4 <= cols; c += 4) {
            const uint32_t v0 = p[0];
            const uint32_t v1 = p[inc];
            const uint32_t v2 = p[2 * inc];
            const uint32_t v3 = p[3 * inc];
            s0 += v0; s1 += v1; s2 += v2; s3 += v3;
            q0 += v0 * v0; q1 += v1 * v1; q2 += v2 * v2; q3 += v3 * v3;
            p += 4 * inc;
        }
        for (; c < cols; ++c) {
            const uint32_t v = p[0];
            s0 += v;
            q0 += v * v;
            p += inc;
        }
        sum += (uint64_t)s0 + s1 + s2 + s3;
        sum_sq += q0 + q1 + q2 + q3;
    }
    *out_sum = sum;
    *out_sum_sq = sum_sq;
    return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/roi"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

const nativeBuilt = true

func nativeSumLuma(plane *types.Plane, rect roi.Rect, stride int) (uint64, uint64, error) {
	if len(plane.Data) == 0 {
		return 0, 0, ErrIneligibleBuffer
	}
	base := rect.Y0*plane.RowStride + rect.X0*plane.PixelStride

	var sum, sumSq C.uint64_t
	rc := C.sum_luma(
		(*C.uint8_t)(unsafe.Pointer(&plane.Data[0])),
		C.size_t(len(plane.Data)),
		C.int(base),
		C.int(plane.RowStride),
		C.int(plane.PixelStride),
		C.int(rect.Width()),
		C.int(rect.Height()),
		C.int(stride),
		&sum,
		&sumSq,
	)
	if rc != 0 {
		return 0, 0, fmt.Errorf("native sum_luma failed (rc=%d)", int(rc))
	}
	return uint64(sum), uint64(sumSq), nil
}
