// Package config loads the pulse extractor service configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
)

// Config represents the complete service configuration
type Config struct {
	Shm       ShmConfig       `yaml:"shm"`
	HTTP      HTTPConfig      `yaml:"http"`
	NATS      NATSConfig      `yaml:"nats"`
	Recording RecordingConfig `yaml:"recording"`
	Log       LogConfig       `yaml:"log"`
	Pipeline  ppg.Params      `yaml:"pipeline"`
}

// ShmConfig contains the camera shared memory settings
type ShmConfig struct {
	Name           string `yaml:"name"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// PollInterval is the frame polling period
func (s ShmConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// HTTPConfig contains listen addresses. An empty address disables the server.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	PprofAddr   string `yaml:"pprof_addr"`
}

// NATSConfig contains the analyzer publisher settings. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RecordingConfig contains the CSV recorder settings
type RecordingConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Shm: ShmConfig{
			Name:           "/pet_camera_frames",
			PollIntervalMs: 33,
		},
		HTTP: HTTPConfig{
			Addr:        ":8082",
			MetricsAddr: ":9091",
		},
		NATS: NATSConfig{
			Subject: "ppg.pulse",
		},
		Recording: RecordingConfig{
			Path: "./recordings",
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
		Pipeline: ppg.DefaultParams(),
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid field. Pipeline values outside their clamp range are
// accepted; unknown enum values are not.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Shm.Name == "" {
		add("shm.name is required")
	}
	if cfg.Shm.PollIntervalMs <= 0 {
		add("shm.poll_interval_ms must be positive, got %d", cfg.Shm.PollIntervalMs)
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject == "" {
		add("nats.subject is required when nats.url is set")
	}
	if cfg.Recording.Path == "" {
		add("recording.path is required")
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	p := cfg.Pipeline
	switch p.Channel {
	case ppg.ChannelRed, ppg.ChannelGreen, ppg.ChannelLuma:
	default:
		add("pipeline.channel: unknown channel %q", p.Channel)
	}
	switch p.Mode {
	case ppg.ModeMean, ppg.ModeChrom, ppg.ModePOS:
	default:
		add("pipeline.mode: unknown mode %q", p.Mode)
	}
	switch p.Blend {
	case ppg.BlendOff, ppg.BlendAuto:
	default:
		add("pipeline.blend: unknown blend %q", p.Blend)
	}
	if math.IsNaN(p.ROI) || p.ROI <= 0 || p.ROI > 1 {
		add("pipeline.roi must be in (0, 1], got %v", p.ROI)
	}
	if p.AGC.GainMin > p.AGC.GainMax {
		add("pipeline.agc.gain_min %v exceeds gain_max %v", p.AGC.GainMin, p.AGC.GainMax)
	}
	if p.AGC.TargetRMS <= 0 {
		add("pipeline.agc.target_rms must be positive, got %v", p.AGC.TargetRMS)
	}

	return errors.Join(errs...)
}
