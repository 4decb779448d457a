package postprocess

import (
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-meter/images"
)

// ErrBadTensor is returned when an output tensor does not have the
// [rows, 5+classes] float32 layout.
var ErrBadTensor = errors.New("malformed detection tensor")

// Row layout of a darknet YOLO output tensor.
const (
	colCenterX = iota
	colCenterY
	colWidth
	colHeight
	colObjectness
	colFirstClass
)

// Decode converts raw YOLO output tensors into pixel-space detections.
//
// Each row is [cx, cy, w, h, objectness, score_0 .. score_{C-1}] with spatial
// values normalised to [0,1]. A row survives when both its objectness and its
// best class score reach confThreshold; the two are thresholded independently
// and the reported score is the class score alone. Boxes are scaled to frame.
//
// Arguments:
//   - outputs: The raw output tensors, rank 2 or rank 3 with a leading batch of 1.
//   - frame: The size (width, height) of the frame boxes are expressed in.
//   - confThreshold: Minimum objectness and class score.
//
// Returns:
//   - []Detection: The surviving candidates, never nil.
//   - error: ErrBadTensor when a tensor has the wrong type or shape.
//
// @example
// dets, err := postprocess.Decode(outputs, image.Pt(640, 480), 0.3)
func Decode(outputs []*tensor.Dense, frame image.Point, confThreshold float32) ([]Detection, error) {
	detections := []Detection{}
	frameW, frameH := float32(frame.X), float32(frame.Y)

	for i, out := range outputs {
		rows, cols, data, err := rowsOf(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}

		for r := 0; r < rows; r++ {
			row := data[r*cols : (r+1)*cols]
			if row[colObjectness] < confThreshold {
				continue
			}

			classID, classScore := argmax(row[colFirstClass:])
			if classScore < confThreshold {
				continue
			}

			width := row[colWidth] * frameW
			height := row[colHeight] * frameH
			centerX := row[colCenterX] * frameW
			centerY := row[colCenterY] * frameH

			detections = append(detections, Detection{
				ClassID: classID,
				Score:   classScore,
				Box: images.Box{
					X:      centerX - width/2,
					Y:      centerY - height/2,
					Width:  width,
					Height: height,
				},
			})
		}
	}

	return detections, nil
}

func rowsOf(t *tensor.Dense) (rows, cols int, data []float32, err error) {
	if t == nil {
		return 0, 0, nil, errors.Wrap(ErrBadTensor, "nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return 0, 0, nil, errors.Wrapf(ErrBadTensor, "dtype %v, want float32", t.Dtype())
	}

	shape := t.Shape()
	switch {
	case len(shape) == 2:
		rows, cols = shape[0], shape[1]
	case len(shape) == 3 && shape[0] == 1:
		rows, cols = shape[1], shape[2]
	default:
		return 0, 0, nil, errors.Wrapf(ErrBadTensor, "shape %v, want [rows, cols]", shape)
	}
	if cols <= colFirstClass {
		return 0, 0, nil, errors.Wrapf(ErrBadTensor, "%d columns, want at least %d", cols, colFirstClass+1)
	}

	data, ok := t.Data().([]float32)
	if !ok || len(data) < rows*cols {
		return 0, 0, nil, errors.Wrap(ErrBadTensor, "backing data does not match shape")
	}
	return rows, cols, data, nil
}

// argmax returns the index and value of the largest score. Ties keep the first.
func argmax(scores []float32) (int, float32) {
	best, bestScore := 0, scores[0]
	for i, s := range scores[1:] {
		if s > bestScore {
			best, bestScore = i+1, s
		}
	}
	return best, bestScore
}
