package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-meter/controller"
	"github.com/nvr-ai/go-meter/inference"
	"github.com/nvr-ai/go-meter/inference/providers"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, "assets", s.Assets)
	assert.Equal(t, "darknet", s.Region.Backend)
	assert.Equal(t, "yolov3-tiny-2cls-320.cfg", s.Region.Config)
	assert.Equal(t, "yolov3-tiny-10cls-320.4.weights", s.Digits.Weights)
	assert.Equal(t, 320, s.Region.InputSize)
	assert.InDelta(t, 0.3, s.Digits.Confidence, 1e-9)
	assert.InDelta(t, 0.4, s.Digits.NMS, 1e-9)
	assert.Equal(t, "ElectroCounters", s.Storage.Dir)
	assert.Equal(t, 50, s.Storage.Quality)
	assert.Equal(t, 100, s.Storage.OriginalQuality)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, controller.DefaultOptions(), s.ControllerOptions())
	assert.NoError(t, s.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets: /opt/meter
region:
  confidence: 0.5
digits:
  backend: onnx
  weights: digits.onnx
controller:
  margin_x: 12
storage:
  dir: /var/lib/meter
  quality: 80
log:
  level: debug
`), 0o644))

	s, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/meter", s.Assets)
	assert.InDelta(t, 0.5, s.Region.Confidence, 1e-9)
	assert.InDelta(t, 0.4, s.Region.NMS, 1e-9)
	assert.Equal(t, 12, s.Controller.MarginX)
	assert.Equal(t, 10, s.Controller.MarginY)
	assert.Equal(t, "/var/lib/meter", s.Storage.Dir)
	assert.Equal(t, 80, s.Storage.Quality)
	assert.Equal(t, 100, s.Storage.OriginalQuality)
	assert.Equal(t, "debug", s.Log.Level)

	digits := s.DetectorConfig("digits", s.Digits)
	assert.Equal(t, inference.EngineONNX, digits.Engine.Backend)
	assert.Equal(t, "/opt/meter/digits.onnx", digits.Engine.Weights)
	assert.Equal(t, image.Pt(320, 320), digits.InputShape)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("METER_STORAGE_DIR", "/tmp/readings")
	t.Setenv("METER_REGION_CONFIDENCE", "0.65")
	t.Setenv("METER_CONTROLLER_REGION_CLASS", "0")

	s, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/readings", s.Storage.Dir)
	assert.InDelta(t, 0.65, s.Region.Confidence, 1e-9)
	assert.Equal(t, 0, s.Controller.RegionClass)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		target error
	}{
		{name: "confidence above one", modify: func(s *Settings) { s.Region.Confidence = 1.2 }, target: ErrInvalidSettings},
		{name: "negative nms", modify: func(s *Settings) { s.Digits.NMS = -0.1 }, target: ErrInvalidSettings},
		{name: "zero input size", modify: func(s *Settings) { s.Digits.InputSize = 0 }, target: ErrInvalidSettings},
		{name: "missing weights", modify: func(s *Settings) { s.Region.Weights = "" }, target: ErrInvalidSettings},
		{name: "darknet without config", modify: func(s *Settings) { s.Region.Config = "" }, target: ErrInvalidSettings},
		{name: "unknown backend", modify: func(s *Settings) { s.Region.Backend = "tflite" }, target: inference.ErrUnknownBackend},
		{name: "negative margin", modify: func(s *Settings) { s.Controller.MarginY = -1 }, target: ErrInvalidSettings},
		{name: "empty storage dir", modify: func(s *Settings) { s.Storage.Dir = "" }, target: ErrInvalidSettings},
		{name: "quality out of range", modify: func(s *Settings) { s.Storage.Quality = 0 }, target: ErrInvalidSettings},
		{name: "unknown provider", modify: func(s *Settings) { s.Runtime.Provider.Backend = "tpu" }, target: providers.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.modify(&s)
			assert.ErrorIs(t, s.Validate(), tt.target)
		})
	}
}

func TestONNXNeedsNoConfig(t *testing.T) {
	s := Defaults()
	s.Region.Backend = "onnx"
	s.Region.Config = ""
	s.Region.Weights = "region.onnx"
	assert.NoError(t, s.Validate())
}

func TestDetectorConfigPaths(t *testing.T) {
	s := Defaults()
	s.Assets = "models"
	s.Region.Config = "/abs/region.cfg"

	cfg := s.DetectorConfig("region", s.Region)
	assert.Equal(t, "region", cfg.Name)
	assert.Equal(t, "/abs/region.cfg", cfg.Engine.Config)
	assert.Equal(t, filepath.Join("models", "yolov3-tiny-2cls-320.weights"), cfg.Engine.Weights)
	assert.InDelta(t, 0.3, cfg.ConfidenceThreshold, 1e-6)
	assert.NoError(t, cfg.Validate())
}

func TestStoreOptions(t *testing.T) {
	s := Defaults()
	s.Storage.Quality = 70

	opts := s.StoreOptions()
	assert.Equal(t, 70, opts.Quality)
	assert.Equal(t, 100, opts.OriginalQuality)
	assert.NotNil(t, opts.Now)
}
