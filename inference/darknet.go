package inference

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// DarknetEngine runs a darknet YOLO network with the OpenCV dnn module on the CPU.
type DarknetEngine struct {
	net         gocv.Net
	outputNames []string
}

// NewDarknetEngine reads a darknet network and resolves its output layers.
//
// Arguments:
//   - cfgPath: The darknet .cfg file.
//   - weightsPath: The darknet .weights file.
//
// Returns:
//   - *DarknetEngine: The loaded engine.
//   - error: An error if OpenCV cannot read the network.
func NewDarknetEngine(cfgPath, weightsPath string) (*DarknetEngine, error) {
	net := gocv.ReadNet(weightsPath, cfgPath)
	if net.Empty() {
		net.Close()
		return nil, errors.Errorf("unable to read darknet network %s / %s", cfgPath, weightsPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DarknetEngine{net: net, outputNames: unconnectedOutputs(&net)}, nil
}

// unconnectedOutputs returns the names of layers whose outputs feed nothing,
// i.e. the YOLO heads. Layer ids are 1-based.
func unconnectedOutputs(net *gocv.Net) []string {
	names := net.GetLayerNames()
	ids := net.GetUnconnectedOutLayers()

	outputs := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 1 && id <= len(names) {
			outputs = append(outputs, names[id-1])
		}
	}
	return outputs
}

// Forward implements Engine.
func (e *DarknetEngine) Forward(blob gocv.Mat) ([]*tensor.Dense, error) {
	if blob.Empty() {
		return nil, errors.New("empty input blob")
	}

	e.net.SetInput(blob, "")
	mats := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()

	outputs := make([]*tensor.Dense, 0, len(mats))
	for i, m := range mats {
		t, err := MatToDense(m)
		if err != nil {
			return nil, errors.Wrapf(err, "output layer %s", e.outputNames[i])
		}
		outputs = append(outputs, t)
	}
	return outputs, nil
}

// OutputNames implements Engine.
func (e *DarknetEngine) OutputNames() []string {
	return append([]string(nil), e.outputNames...)
}

// Close implements Engine.
func (e *DarknetEngine) Close() error {
	return e.net.Close()
}
