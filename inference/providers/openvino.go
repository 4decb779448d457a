package providers

import "strconv"

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU).
	DeviceType string `json:"deviceType" yaml:"deviceType" mapstructure:"device_type"`
	// FP32, FP16 or ACCURACY.
	Precision string `json:"precision" yaml:"precision" mapstructure:"precision"`
	// Overrides the accelerator default number of threads. Zero leaves the default.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads" mapstructure:"num_of_threads"`
	// This option enables rewriting dynamic shaped models to static shape at runtime and execute.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes" mapstructure:"disable_dynamic_shapes"`
}

// DefaultOpenVINOOptions targets the CPU at full precision.
func DefaultOpenVINOOptions() OpenVINOOptions {
	return OpenVINOOptions{DeviceType: "CPU", Precision: "FP32"}
}

// ToNativeOptions renders the options as onnxruntime provider keys.
func (o OpenVINOOptions) ToNativeOptions() map[string]string {
	options := map[string]string{
		"device_type":            o.DeviceType,
		"precision":              o.Precision,
		"disable_dynamic_shapes": strconv.FormatBool(o.DisableDynamicShapes),
	}
	if o.NumOfThreads > 0 {
		options["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	return options
}
