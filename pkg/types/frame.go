package types

import "time"

// Plane is one image plane as delivered by the capture pipeline
type Plane struct {
	Data        []byte // Raw plane bytes
	RowStride   int    // Bytes between the starts of consecutive rows
	PixelStride int    // Bytes between consecutive samples in a row
}

// At returns the sample at (x, y) in plane coordinates
func (p *Plane) At(x, y int) byte {
	return p.Data[y*p.RowStride+x*p.PixelStride]
}

// Covers reports whether every sample of the w*h rectangle at (x, y) lies inside Data
func (p *Plane) Covers(x, y, w, h int) bool {
	if p == nil || x < 0 || y < 0 || w <= 0 || h <= 0 {
		return false
	}
	last := (y+h-1)*p.RowStride + (x+w-1)*p.PixelStride
	return last >= 0 && last < len(p.Data)
}

// FrameDescriptor describes one camera frame for the duration of a single call.
// Chroma planes are optional and, when present, are sampled at half resolution (4:2:0).
type FrameDescriptor struct {
	Width     int
	Height    int
	Luma      Plane
	Cb        *Plane
	Cr        *Plane
	Timestamp time.Duration // Presentation timestamp, zero when unknown
}

// HasChroma reports whether both chroma planes are present
func (f *FrameDescriptor) HasChroma() bool {
	return f.Cb != nil && f.Cr != nil && len(f.Cb.Data) > 0 && len(f.Cr.Data) > 0
}

// Format constants matching the camera shared memory layout
const (
	FormatJPEG = 0
	FormatNV12 = 1
	FormatRGB  = 2
	FormatH264 = 3
)

// NewLumaFrame wraps a tightly packed luma-only buffer
func NewLumaFrame(data []byte, width, height int, ts time.Duration) *FrameDescriptor {
	return &FrameDescriptor{
		Width:     width,
		Height:    height,
		Luma:      Plane{Data: data, RowStride: width, PixelStride: 1},
		Timestamp: ts,
	}
}

// NewNV12Frame wraps an NV12 buffer: a full-resolution Y plane followed by an
// interleaved CbCr plane at half resolution.
func NewNV12Frame(data []byte, width, height int, ts time.Duration) *FrameDescriptor {
	ySize := width * height
	f := &FrameDescriptor{
		Width:     width,
		Height:    height,
		Luma:      Plane{Data: data[:min(ySize, len(data))], RowStride: width, PixelStride: 1},
		Timestamp: ts,
	}
	if len(data) > ySize+1 {
		uv := data[ySize:]
		f.Cb = &Plane{Data: uv, RowStride: width, PixelStride: 2}
		f.Cr = &Plane{Data: uv[1:], RowStride: width, PixelStride: 2}
	}
	return f
}

// NewI420Frame wraps a planar I420 buffer (Y, then Cb, then Cr, chroma at half resolution)
func NewI420Frame(data []byte, width, height int, ts time.Duration) *FrameDescriptor {
	ySize := width * height
	cw, ch := (width+1)/2, (height+1)/2
	cSize := cw * ch
	f := &FrameDescriptor{
		Width:     width,
		Height:    height,
		Luma:      Plane{Data: data[:min(ySize, len(data))], RowStride: width, PixelStride: 1},
		Timestamp: ts,
	}
	if len(data) >= ySize+2*cSize {
		f.Cb = &Plane{Data: data[ySize : ySize+cSize], RowStride: cw, PixelStride: 1}
		f.Cr = &Plane{Data: data[ySize+cSize : ySize+2*cSize], RowStride: cw, PixelStride: 1}
	}
	return f
}
