// Package providers - onnxruntime execution provider selection.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an onnxruntime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// ErrUnknownProvider is returned for a backend name this package cannot configure.
var ErrUnknownProvider = errors.New("unknown execution provider")

// Config selects and tunes the execution provider for an onnxruntime session.
type Config struct {
	// Backend is the execution provider. Empty means CPU.
	Backend ProviderBackend `json:"backend" yaml:"backend" mapstructure:"backend"`
	// IntraOpThreads parallelises work inside graph nodes. Zero uses the runtime default.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads" mapstructure:"intra_op_threads"`
	// InterOpThreads parallelises independent graph nodes. Zero uses the runtime default.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads" mapstructure:"inter_op_threads"`
	// CUDA holds options for CUDAProviderBackend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda" mapstructure:"cuda"`
	// OpenVINO holds options for OpenVINOProviderBackend.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino" mapstructure:"openvino"`
	// CoreMLFlags is passed through to the CoreML provider.
	CoreMLFlags uint32 `json:"coremlFlags" yaml:"coremlFlags" mapstructure:"coreml_flags"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen thread counts.
func DefaultConfig() Config {
	return Config{
		Backend:  CPUProviderBackend,
		OpenVINO: DefaultOpenVINOOptions(),
	}
}

// Validate checks that the backend is one this package knows how to attach.
func (c Config) Validate() error {
	switch c.Backend {
	case "", CPUProviderBackend, CoreMLProviderBackend, CUDAProviderBackend, OpenVINOProviderBackend:
	default:
		return errors.Wrapf(ErrUnknownProvider, "%q", c.Backend)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// NewSessionOptions builds onnxruntime session options for the configured provider.
//
// The caller must Destroy the returned options once the session is created.
//
// Arguments:
//   - c: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: Options with threads, graph optimisation and the provider attached.
//   - error: An error if the provider cannot be enabled.
func NewSessionOptions(c Config) (*ort.SessionOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := configure(options, c); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, c Config) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch c.Backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreMLFlags); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.ToNativeOptions()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case CUDAProviderBackend:
		cuda, err := c.CUDA.ToNativeProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	}
	return nil
}
