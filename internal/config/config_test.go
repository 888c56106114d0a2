package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, ppg.DefaultParams(), cfg.Pipeline)
	assert.Equal(t, 33*time.Millisecond, cfg.Shm.PollInterval())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shm:
  name: /front_camera
nats:
  url: nats://127.0.0.1:4222
log:
  level: debug
pipeline:
  mode: chrom
  blend: auto
  grid: 3
  agc:
    target_rms: 0.05
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/front_camera", cfg.Shm.Name)
	assert.Equal(t, 33, cfg.Shm.PollIntervalMs, "unset keys keep defaults")
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "ppg.pulse", cfg.NATS.Subject)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Equal(t, ppg.ModeChrom, cfg.Pipeline.Mode)
	assert.Equal(t, ppg.BlendAuto, cfg.Pipeline.Blend)
	assert.Equal(t, 3, cfg.Pipeline.Grid)
	assert.Equal(t, 0.05, cfg.Pipeline.AGC.TargetRMS)
	assert.Equal(t, ppg.DefaultGainMax, cfg.Pipeline.AGC.GainMax)
	assert.True(t, cfg.Pipeline.AGC.Enabled)
	assert.Equal(t, ppg.ChannelGreen, cfg.Pipeline.Channel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("shm: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidateReportsEveryField(t *testing.T) {
	_, err := Parse([]byte(`
shm:
  name: ""
  poll_interval_ms: 0
nats:
  url: nats://localhost:4222
  subject: ""
log:
  level: loud
pipeline:
  channel: blue
  mode: ica
  blend: always
  roi: 0
  agc:
    gain_min: 10
    gain_max: 2
    target_rms: -1
`))
	require.Error(t, err)
	for _, want := range []string{
		"shm.name",
		"shm.poll_interval_ms",
		"nats.subject",
		"log.level",
		"pipeline.channel",
		"pipeline.mode",
		"pipeline.blend",
		"pipeline.roi",
		"gain_min",
		"target_rms",
	} {
		assert.ErrorContains(t, err, want)
	}
}
