// Package detectors - Single-stage YOLO detectors built on an inference engine.
package detectors

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-meter/inference"
)

// ErrInvalidConfig is returned when a detector configuration is out of range.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config represents the configuration of one detector.
type Config struct {
	// Name labels the detector in logs and metrics (e.g. "region", "digits").
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Engine locates the network artifacts. Only used by Open.
	Engine inference.Spec `json:"engine" yaml:"engine" mapstructure:"engine"`

	// InputShape defines the network input dimensions (width, height)
	InputShape image.Point `json:"input_shape" yaml:"input_shape" mapstructure:"input_shape"`

	// ConfidenceThreshold filters detections below this confidence level
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// NMSThreshold controls Non-Maximum Suppression IoU threshold
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold" mapstructure:"nms_threshold"`
}

// DefaultConfig returns the thresholds and input size the meter networks were trained for.
//
// Returns:
//   - Config: 320x320 input, confidence 0.3, NMS 0.4.
//
// @example
// cfg := DefaultConfig()
// cfg.Engine.Weights = "models/yolov3-tiny-2cls-320.weights"
// detector, err := Open(cfg)
func DefaultConfig() Config {
	return Config{
		Engine:              inference.Spec{Backend: inference.EngineDarknet},
		InputShape:          image.Point{X: 320, Y: 320},
		ConfidenceThreshold: 0.3,
		NMSThreshold:        0.4,
	}
}

// Validate checks the input size and thresholds.
func (c Config) Validate() error {
	if c.InputShape.X <= 0 || c.InputShape.Y <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input shape %v must be positive", c.InputShape)
	}
	return validateThresholds(c.ConfidenceThreshold, c.NMSThreshold)
}

func validateThresholds(conf, nms float32) error {
	if conf < 0 || conf > 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence threshold %v outside [0,1]", conf)
	}
	if nms < 0 || nms > 1 {
		return errors.Wrapf(ErrInvalidConfig, "nms threshold %v outside [0,1]", nms)
	}
	return nil
}
