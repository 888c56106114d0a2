// Package roi turns a fractional region-of-interest request into pixel bounds
// and tiles it into a grid of sampling patches.
package roi

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinFraction      = 0.2
	MaxFraction      = 0.6
	FallbackFraction = 0.4
	MinAreaFraction  = 0.1
	MinGrid          = 1
	MaxGrid          = 3
	MinStride        = 1
	MaxStride        = 8
)

// ErrInvalidGeometry is returned for frames with non-positive dimensions
var ErrInvalidGeometry = errors.New("roi: non-positive frame dimensions")

// Rect is a pixel rectangle; X1/Y1 are exclusive
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Width returns the rectangle width
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the rectangle height
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Area returns the rectangle area in pixels
func (r Rect) Area() int { return r.Width() * r.Height() }

// Region is the resolved ROI and its patch grid
type Region struct {
	Bounds   Rect
	Fraction float64 // Effective fraction after clamping and the area guard
	Patches  []Rect  // Row-major, Grid*Grid entries
	Grid     int
	Stride   int
}

// ClampFraction limits a requested ROI fraction to [MinFraction, MaxFraction]
func ClampFraction(f float64) float64 {
	if math.IsNaN(f) {
		return FallbackFraction
	}
	return min(max(f, MinFraction), MaxFraction)
}

func ClampGrid(g int) int   { return min(max(g, MinGrid), MaxGrid) }
func ClampStride(s int) int { return min(max(s, MinStride), MaxStride) }

// SampleCount is the number of samples taken over length pixels stepping by step
func SampleCount(length, step int) int {
	if length <= 0 || step <= 0 {
		return 0
	}
	return (length + step - 1) / step
}

// Compute resolves the ROI for a width x height frame. The ROI is centered, covers at
// least MinAreaFraction of the frame (falling back to FallbackFraction once otherwise),
// and is tiled by grid x grid patches whose last row and column absorb the remainder.
func Compute(width, height int, fraction float64, grid, stride int) (Region, error) {
	if width <= 0 || height <= 0 {
		return Region{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}

	frac := ClampFraction(fraction)
	grid = ClampGrid(grid)
	stride = ClampStride(stride)

	roiW, roiH := sideLengths(width, height, frac)
	minArea := MinAreaFraction * float64(width) * float64(height)
	if float64(roiW)*float64(roiH) < minArea {
		frac = FallbackFraction
		roiW = min(int(math.Ceil(float64(width)*frac)), width)
		roiH = min(int(math.Ceil(float64(height)*frac)), height)
	}

	startX := max((width-roiW)/2, 0)
	startY := max((height-roiH)/2, 0)
	bounds := Rect{X0: startX, Y0: startY, X1: startX + roiW, Y1: startY + roiH}

	return Region{
		Bounds:   bounds,
		Fraction: frac,
		Patches:  tile(bounds, grid),
		Grid:     grid,
		Stride:   stride,
	}, nil
}

func sideLengths(width, height int, frac float64) (int, int) {
	w := max(int(float64(width)*frac), 1)
	h := max(int(float64(height)*frac), 1)
	return w, h
}

func tile(b Rect, grid int) []Rect {
	patchW := max(b.Width()/grid, 1)
	patchH := max(b.Height()/grid, 1)

	patches := make([]Rect, 0, grid*grid)
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			p := Rect{
				X0: b.X0 + gx*patchW,
				Y0: b.Y0 + gy*patchH,
			}
			p.X1 = p.X0 + patchW
			p.Y1 = p.Y0 + patchH
			if gx == grid-1 {
				p.X1 = b.X1
			}
			if gy == grid-1 {
				p.Y1 = b.Y1
			}
			p.X1 = min(p.X1, b.X1)
			p.Y1 = min(p.Y1, b.Y1)
			patches = append(patches, p)
		}
	}
	return patches
}
