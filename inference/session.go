// Package inference - Inference sessions.
package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-meter/inference/providers"
)

// ONNXEngine runs an exported YOLO model through onnxruntime.
//
// Input and output tensors are allocated per call so the same session serves
// any input size the model accepts.
type ONNXEngine struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewONNXEngine creates an onnxruntime session for modelPath.
//
// Order of operations:
//  1. Runtime: load the shared library once per process.
//  2. Introspection: read the model's input and output names.
//  3. Session options: threads, graph optimisation and execution provider.
//  4. Session creation.
//
// Arguments:
//   - modelPath: The .onnx file.
//   - provider: Execution provider configuration.
//   - library: Optional override for the onnxruntime shared library.
//
// Returns:
//   - *ONNXEngine: The loaded engine.
//   - error: An error if any step fails.
func NewONNXEngine(modelPath string, provider providers.Config, library string) (*ONNXEngine, error) {
	if err := providers.InitializeRuntime(providers.GetSharedLibPath(library)); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model info from %s", modelPath)
	}
	if len(inputs) != 1 {
		return nil, errors.Errorf("model %s has %d inputs, want 1", modelPath, len(inputs))
	}

	options, err := providers.NewSessionOptions(provider)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	engine := &ONNXEngine{
		inputNames:  []string{inputs[0].Name},
		outputNames: make([]string, 0, len(outputs)),
	}
	for _, o := range outputs {
		engine.outputNames = append(engine.outputNames, o.Name)
	}

	engine.session, err = ort.NewDynamicAdvancedSession(modelPath, engine.inputNames, engine.outputNames, options)
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	return engine, nil
}

// Forward implements Engine.
func (e *ONNXEngine) Forward(blob gocv.Mat) ([]*tensor.Dense, error) {
	if e.session == nil {
		return nil, errors.New("session closed")
	}

	shape, data, err := blobData(blob)
	if err != nil {
		return nil, err
	}
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	input, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer input.Destroy()

	results := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run([]ort.Value{input}, results); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}
	defer func() {
		for _, r := range results {
			if r != nil {
				r.Destroy()
			}
		}
	}()

	outputs := make([]*tensor.Dense, 0, len(results))
	for i, r := range results {
		t, ok := r.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %s is %T, want float32 tensor", e.outputNames[i], r)
		}
		d, err := toDense(shapeOf(t.GetShape()), t.GetData())
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", e.outputNames[i])
		}
		outputs = append(outputs, d)
	}
	return outputs, nil
}

// OutputNames implements Engine.
func (e *ONNXEngine) OutputNames() []string {
	return append([]string(nil), e.outputNames...)
}

// Close implements Engine.
func (e *ONNXEngine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}

func shapeOf(s ort.Shape) []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}
