// Package replay turns still images into frame descriptors so that field captures can
// be run through the pipeline offline.
package replay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

// DefaultFPS is the frame rate assumed for image sequences
const DefaultFPS = 30.0

// ErrNoFrames is returned when a directory holds no decodable images
var ErrNoFrames = errors.New("replay: no image files found")

var extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// Options control how images become frames
type Options struct {
	FPS      float64 // Timestamps advance by 1/FPS per image
	MaxWidth int     // Larger images are scaled down, keeping the aspect ratio; 0 keeps the size
}

// Decode reads one image in any registered format
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("replay: decode: %w", err)
	}
	return img, format, nil
}

// Scale shrinks img to maxWidth when it is wider
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(b.Dy()*maxWidth/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FrameFromImage converts img into a 4:2:0 frame. JPEG output is wrapped without
// copying; every other image is converted pixel by pixel.
func FrameFromImage(img image.Image, ts time.Duration) *types.FrameDescriptor {
	if ycc, ok := img.(*image.YCbCr); ok && ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 && ycc.Rect.Min == (image.Point{}) {
		return &types.FrameDescriptor{
			Width:     ycc.Rect.Dx(),
			Height:    ycc.Rect.Dy(),
			Luma:      types.Plane{Data: ycc.Y, RowStride: ycc.YStride, PixelStride: 1},
			Cb:        &types.Plane{Data: ycc.Cb, RowStride: ycc.CStride, PixelStride: 1},
			Cr:        &types.Plane{Data: ycc.Cr, RowStride: ycc.CStride, PixelStride: 1},
			Timestamp: ts,
		}
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	buf := make([]byte, w*h+2*cw*ch)
	ys := buf[:w*h]
	cbs := buf[w*h : w*h+cw*ch]
	crs := buf[w*h+cw*ch:]

	cbSum := make([]int, cw*ch)
	crSum := make([]int, cw*ch)
	count := make([]int, cw*ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			ys[y*w+x] = yy
			k := (y/2)*cw + x/2
			cbSum[k] += int(cb)
			crSum[k] += int(cr)
			count[k]++
		}
	}
	for k := range count {
		if count[k] > 0 {
			cbs[k] = uint8((cbSum[k] + count[k]/2) / count[k])
			crs[k] = uint8((crSum[k] + count[k]/2) / count[k])
		}
	}
	return types.NewI420Frame(buf, w, h, ts)
}

// Dir replays the images of one directory in file name order
type Dir struct {
	files []string
	opts  Options
	next  int
}

// OpenDir lists the image files in path
func OpenDir(path string, opts Options) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(extensions, ext) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, path)
	}
	slices.Sort(files)

	logger.Info("Replay", "Found %d images in %s", len(files), path)
	return &Dir{files: files, opts: opts}, nil
}

// Len is the number of images
func (d *Dir) Len() int { return len(d.files) }

// Next decodes the next image. It returns io.EOF after the last one. Image i is
// stamped (i+1)/FPS so that every frame carries a timestamp.
func (d *Dir) Next() (*types.FrameDescriptor, string, error) {
	if d.next >= len(d.files) {
		return nil, "", io.EOF
	}
	i := d.next
	d.next++
	path := d.files[i]

	f, err := os.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	ts := time.Duration(math.Round(float64(i+1) / d.opts.FPS * float64(time.Second)))
	return FrameFromImage(Scale(img, d.opts.MaxWidth), ts), path, nil
}
