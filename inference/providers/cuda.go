package providers

import (
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID" mapstructure:"device_id"`
	// The size limit of the device memory arena in bytes. Zero leaves the runtime default.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit" mapstructure:"gpu_mem_limit"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch" mapstructure:"cudnn_conv_algo_search"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream" mapstructure:"do_copy_in_default_stream"`
}

// settings renders the options as onnxruntime provider keys.
func (o CUDAOptions) settings() map[string]string {
	algo := [...]string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
	search := algo[0]
	if o.CudnnConvAlgoSearch > 0 && o.CudnnConvAlgoSearch < len(algo) {
		search = algo[o.CudnnConvAlgoSearch]
	}

	settings := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"cudnn_conv_algo_search":    search,
		"do_copy_in_default_stream": strconv.FormatBool(o.DoCopyInDefaultStream),
	}
	if o.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	return settings
}

// ToNativeProviderOptions converts the CUDA options to onnxruntime provider options.
// The caller must Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	if err := opts.Update(o.settings()); err != nil {
		opts.Destroy()
		return nil, err
	}
	return opts, nil
}
