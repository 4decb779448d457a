package inference

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// MatToDense copies a float32 Mat into a tensor squeezed to [rows, cols].
//
// The Mat is not retained; the caller may close it immediately.
//
// Arguments:
//   - m: A CV_32F Mat of any rank.
//
// Returns:
//   - *tensor.Dense: An owned copy of the data.
//   - error: An error if the Mat is not float32 or cannot be squeezed to 2-D.
func MatToDense(m gocv.Mat) (*tensor.Dense, error) {
	shape, data, err := blobData(m)
	if err != nil {
		return nil, err
	}
	return toDense(shape, data)
}

// blobData returns the dimensions of m and a view of its float32 data.
func blobData(m gocv.Mat) ([]int, []float32, error) {
	if m.Empty() {
		return nil, nil, errors.New("empty mat")
	}
	if m.Type() != gocv.MatTypeCV32F {
		return nil, nil, errors.Errorf("mat type %v, want CV_32F", m.Type())
	}

	shape := m.Size()

	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading mat data")
	}
	return shape, data, nil
}

// toDense squeezes leading unit dimensions until the shape is 2-D and copies data.
func toDense(shape []int, data []float32) (*tensor.Dense, error) {
	squeezed := shape
	for len(squeezed) > 2 && squeezed[0] == 1 {
		squeezed = squeezed[1:]
	}
	if len(squeezed) != 2 {
		return nil, errors.Errorf("cannot squeeze shape %v to 2-D", shape)
	}

	n := squeezed[0] * squeezed[1]
	if len(data) < n {
		return nil, errors.Errorf("shape %v needs %d values, have %d", shape, n, len(data))
	}

	backing := make([]float32, n)
	copy(backing, data[:n])
	return tensor.New(tensor.WithShape(squeezed...), tensor.WithBacking(backing)), nil
}
