package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/replay"
)

func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		v := uint8(120 + i%3)
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				img.SetRGBA(x, y, color.RGBA{R: v + 20, G: v, B: v - 10, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i)), buf.Bytes(), 0o644))
	}
}

func TestRunWritesOneRowPerImage(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 12)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_999.png"), []byte("broken"), 0o644))

	frames, err := replay.OpenDir(dir, replay.Options{FPS: 10})
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := run(frames, ppg.New(ppg.DefaultConfig()), ppg.DefaultParams(), &out)
	require.NoError(t, err)
	assert.Equal(t, 12, n, "broken image is skipped")

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 13)
	assert.Equal(t, header, rows[0])

	first := rows[1]
	assert.Equal(t, "frame_000.png", first[0])
	assert.Equal(t, "0.100000", first[1])
	assert.Equal(t, "1", first[13], "history depth after one frame")

	last := rows[12]
	assert.Equal(t, "frame_011.png", last[0])
	assert.Equal(t, "1.200000", last[1])
	assert.Equal(t, "12", last[13])
	for _, r := range rows[1:] {
		assert.Len(t, r, len(header))
	}
}
