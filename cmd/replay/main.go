// Command replay runs a directory of still images through the pulse pipeline and
// prints one CSV row per image.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/replay"
)

var (
	dir        = flag.String("dir", "", "Directory of frames (jpg, png, bmp, tiff, webp)")
	configPath = flag.String("config", "", "YAML config file; only the pipeline block is used")
	fps        = flag.Float64("fps", replay.DefaultFPS, "Frame rate used to timestamp images")
	maxWidth   = flag.Int("max-width", 0, "Scale wider images down to this width (0 keeps the size)")
	mode       = flag.String("mode", "", "Extraction mode (mean, chrom, pos)")
	channel    = flag.String("channel", "", "Mean-mode channel (red, green, luma)")
	blend      = flag.String("blend", "", "Blend (off, auto)")
	torch      = flag.Bool("torch", false, "Torch hint")
	scalar     = flag.Bool("scalar", false, "Disable the accelerated luma path")
	logLevel   = flag.String("log-level", "warn", "Log level (debug, info, warn, error, silent)")
)

var header = []string{
	"file", "timestamp", "sample", "confidence",
	"mean_value", "chrom_value", "pre_agc", "agc_gain", "agc_rms",
	"exposure", "temporal", "reliability", "blend_weight", "history", "accelerated",
}

func main() {
	flag.Parse()
	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, false)
	defer logger.Sync()

	params, err := loadParams()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	frames, err := replay.OpenDir(*dir, replay.Options{FPS: *fps, MaxWidth: *maxWidth})
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *dir, err)
	}

	n, err := run(frames, ppg.New(ppg.DefaultConfig()), params, os.Stdout)
	if err != nil {
		log.Fatalf("Replay failed after %d frames: %v", n, err)
	}
	logger.Info("Replay", "Processed %d frames", n)
}

func loadParams() (ppg.Params, error) {
	p := ppg.DefaultParams()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return p, err
		}
		p = cfg.Pipeline
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			p.Mode = ppg.Mode(*mode)
		case "channel":
			p.Channel = ppg.Channel(*channel)
		case "blend":
			p.Blend = ppg.Blend(*blend)
		case "torch":
			p.Torch = *torch
		case "scalar":
			p.Accelerated = !*scalar
		}
	})
	return p.Normalize(), nil
}

// run processes every frame and writes the CSV. Undecodable images are logged and skipped.
func run(frames *replay.Dir, pipeline *ppg.Pipeline, params ppg.Params, out io.Writer) (int, error) {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return 0, err
	}

	n := 0
	for {
		frame, path, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("Replay", "Skipping %s: %v", path, err)
			continue
		}

		res := pipeline.Process(frame, params)
		if res.Err != nil {
			logger.Warn("Replay", "%s: %v", filepath.Base(path), res.Err)
		}
		if err := w.Write(row(filepath.Base(path), &res)); err != nil {
			return n, err
		}
		n++
	}

	w.Flush()
	return n, w.Error()
}

func row(name string, r *ppg.Result) []string {
	return []string{
		name,
		strconv.FormatFloat(r.Timestamp, 'f', 6, 64),
		formatFloat(r.Sample),
		strconv.FormatFloat(r.Confidence, 'f', 4, 64),
		formatFloat(r.Aggregate.Value),
		formatFloat(r.Chrom.Value),
		formatFloat(r.PreAGC),
		formatFloat(r.AGC.Gain),
		formatFloat(r.AGC.RMS),
		formatFloat(r.Quality.Exposure),
		formatFloat(r.Quality.Temporal),
		formatFloat(r.Quality.Reliability),
		formatFloat(r.Selection.BlendWeight),
		strconv.Itoa(r.HistoryLen),
		strconv.FormatBool(r.Accelerated),
	}
}

// formatFloat leaves NaN cells empty
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
