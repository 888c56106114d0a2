package replay

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch filepath.Ext(path) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".bmp":
		err = bmp.Encode(&buf, img)
	case ".tiff":
		err = tiff.Encode(&buf, img, nil)
	case ".jpg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	}
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestFrameFromImageConvertsRGB(t *testing.T) {
	red := color.RGBA{R: 200, G: 40, B: 30, A: 255}
	f := FrameFromImage(solid(5, 3, red), time.Second)

	wantY, wantCb, wantCr := color.RGBToYCbCr(200, 40, 30)
	require.True(t, f.HasChroma())
	assert.Equal(t, 5, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, wantY, f.Luma.At(4, 2))
	assert.Equal(t, wantCb, f.Cb.At(2, 1))
	assert.Equal(t, wantCr, f.Cr.At(2, 1))
	assert.Equal(t, time.Second, f.Timestamp)
}

func TestFrameFromImageWrapsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(32, 16, color.RGBA{R: 128, G: 128, B: 128, A: 255}), nil))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	ycc, ok := img.(*image.YCbCr)
	require.True(t, ok)

	f := FrameFromImage(img, 0)
	assert.Same(t, &ycc.Y[0], &f.Luma.Data[0], "luma is not copied")
	assert.InDelta(t, 128, int(f.Luma.At(10, 10)), 2)
	assert.InDelta(t, 128, int(f.Cb.At(5, 5)), 2)
}

func TestDecodeRegisteredFormats(t *testing.T) {
	img := solid(4, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	for _, enc := range []struct {
		name   string
		encode func(io.Writer, image.Image) error
	}{
		{"bmp", bmp.Encode},
		{"tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }},
		{"png", png.Encode},
	} {
		var buf bytes.Buffer
		require.NoError(t, enc.encode(&buf, img))
		_, format, err := Decode(&buf)
		require.NoError(t, err, enc.name)
		assert.Equal(t, enc.name, format)
	}

	_, _, err := Decode(bytes.NewReader([]byte("garbage")))
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	img := solid(64, 32, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	assert.Same(t, image.Image(img), Scale(img, 0))
	assert.Same(t, image.Image(img), Scale(img, 64))

	small := Scale(img, 16)
	assert.Equal(t, image.Rect(0, 0, 16, 8), small.Bounds())
	r, _, _, _ := small.At(8, 4).RGBA()
	assert.Equal(t, uint32(90), r>>8)
}

func TestDirReplaysInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "002.bmp"), solid(8, 8, color.RGBA{R: 50, G: 50, B: 50, A: 255}))
	writeImage(t, filepath.Join(dir, "001.png"), solid(8, 8, color.RGBA{R: 30, G: 30, B: 30, A: 255}))
	writeImage(t, filepath.Join(dir, "003.tiff"), solid(8, 8, color.RGBA{R: 70, G: 70, B: 70, A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("frames"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	d, err := OpenDir(dir, Options{FPS: 10})
	require.NoError(t, err)
	require.Equal(t, 3, d.Len())

	var lumas []byte
	var stamps []time.Duration
	for {
		f, path, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err, path)
		lumas = append(lumas, f.Luma.At(0, 0))
		stamps = append(stamps, f.Timestamp)
	}
	assert.Equal(t, []byte{30, 50, 70}, lumas)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, stamps)
}

func TestDirReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644))

	d, err := OpenDir(dir, Options{})
	require.NoError(t, err)
	_, path, err := d.Next()
	assert.Error(t, err)
	assert.Equal(t, filepath.Join(dir, "broken.png"), path)

	_, err = OpenDir(t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrNoFrames)
}
