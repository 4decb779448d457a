package images

import (
	"image"

	"gocv.io/x/gocv"
)

// Margin is a fixed, per-axis expansion applied around a region of interest.
//
// It is an absolute pixel amount, independent of the box size.
type Margin struct {
	X, Y int
}

// PaddedROI expands box by margin on every side and clamps it to bounds.
//
// The result never has a negative origin and never extends past bounds. A box
// lying entirely outside the frame collapses to an empty rectangle on the
// nearest edge rather than failing.
//
// Arguments:
//   - box: The region detection, in frame coordinates.
//   - margin: The horizontal and vertical expansion.
//   - bounds: The frame size (width, height).
//
// Returns:
//   - image.Rectangle: The clamped crop rectangle.
//
// @example
// rect := PaddedROI(Box{X: 100, Y: 100, Width: 200, Height: 150}, Margin{X: 30, Y: 10}, image.Pt(640, 480))
// // rect == (70,90)-(330,260), i.e. x=70 y=90 w=260 h=170
func PaddedROI(box Box, margin Margin, bounds image.Point) image.Rectangle {
	r := box.Rect()

	x0 := clamp(r.Min.X-margin.X, 0, bounds.X)
	y0 := clamp(r.Min.Y-margin.Y, 0, bounds.Y)
	x1 := clamp(r.Max.X+margin.X, x0, bounds.X)
	y1 := clamp(r.Max.Y+margin.Y, y0, bounds.Y)

	return image.Rectangle{Min: image.Pt(x0, y0), Max: image.Pt(x1, y1)}
}

// Crop copies rect out of src into a new, independently owned Mat.
//
// An empty rect yields an empty Mat, which downstream detectors treat as
// "nothing to find".
func Crop(src gocv.Mat, rect image.Rectangle) gocv.Mat {
	if rect.Empty() {
		return gocv.NewMat()
	}
	region := src.Region(rect)
	defer region.Close()
	return region.Clone()
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
