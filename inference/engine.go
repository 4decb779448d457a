package inference

import (
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-meter/inference/providers"
)

// ErrUnknownBackend is returned by Open for an EngineType it does not support.
var ErrUnknownBackend = errors.New("unknown inference backend")

// Engine runs a loaded network's forward pass.
//
// Implementations are not safe for concurrent use.
type Engine interface {
	// Forward feeds a 4-D NCHW blob and returns the raw output tensors, one
	// per output layer, each squeezed to [rows, cols].
	Forward(blob gocv.Mat) ([]*tensor.Dense, error)
	// OutputNames lists the output layers Forward reads, in order.
	OutputNames() []string
	// Close releases native resources.
	Close() error
}

// Spec identifies a network on disk and how to run it.
type Spec struct {
	// Backend selects the engine implementation.
	Backend EngineType `json:"backend" yaml:"backend" mapstructure:"backend"`
	// Config is the network definition (darknet .cfg). Unused by EngineONNX.
	Config string `json:"config" yaml:"config" mapstructure:"config"`
	// Weights is the trained weights (darknet .weights or .onnx model).
	Weights string `json:"weights" yaml:"weights" mapstructure:"weights"`
	// Provider tunes the onnxruntime session. Unused by EngineDarknet.
	Provider providers.Config `json:"provider" yaml:"provider" mapstructure:"provider"`
	// Library overrides the onnxruntime shared library path.
	Library string `json:"library" yaml:"library" mapstructure:"library"`
}

// Open loads the network described by spec.
//
// Missing or empty artifacts are reported here, before any native library is
// touched, so a misconfigured deployment fails at startup.
//
// Arguments:
//   - spec: The network artifacts and backend.
//
// Returns:
//   - Engine: The loaded engine; the caller must Close it.
//   - error: An asset, backend or load error.
//
// @example
//
//	engine, err := inference.Open(inference.Spec{
//	    Backend: inference.EngineDarknet,
//	    Config:  "models/yolov3-tiny-2cls-320.cfg",
//	    Weights: "models/yolov3-tiny-2cls-320.weights",
//	})
func Open(spec Spec) (Engine, error) {
	switch spec.Backend {
	case EngineDarknet:
		if err := checkArtifact(spec.Config); err != nil {
			return nil, err
		}
		if err := checkArtifact(spec.Weights); err != nil {
			return nil, err
		}
		return NewDarknetEngine(spec.Config, spec.Weights)
	case EngineONNX:
		if err := checkArtifact(spec.Weights); err != nil {
			return nil, err
		}
		return NewONNXEngine(spec.Weights, spec.Provider, spec.Library)
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", spec.Backend)
	}
}

func checkArtifact(path string) error {
	if path == "" {
		return errors.New("model artifact path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "model artifact %s", path)
	}
	if info.IsDir() || info.Size() == 0 {
		return errors.Errorf("model artifact %s is not a non-empty file", path)
	}
	return nil
}
