// Package images - Image geometry and preprocessing utilities.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned rectangle in the pixel space of one specific frame.
//
// X and Y are the top-left corner. Boxes are never normalised; a box is only
// meaningful together with the frame it was produced against.
type Box struct {
	X, Y          float32
	Width, Height float32
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float32 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float32 { return b.Y + b.Height }

// Area returns Width*Height, or 0 for degenerate boxes.
func (b Box) Area() float32 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Rect converts the box to an integer rectangle.
//
// Each component is truncated independently, so the width and height are
// preserved as whole pixels rather than recomputed from the truncated corners.
//
// Returns:
//   - image.Rectangle: The truncated rectangle.
//
// @example
// box := Box{X: 100.7, Y: 99.2, Width: 200.5, Height: 150.9}
// rect := box.Rect() // (100,99)-(300,249)
func (b Box) Rect() image.Rectangle {
	x, y := int(b.X), int(b.Y)
	return image.Rect(x, y, x+int(b.Width), y+int(b.Height))
}

// String renders the box in the xywh form used by detection reports.
func (b Box) String() string {
	return fmt.Sprintf("xywh(%s, %s, %s, %s)",
		formatFloat(b.X), formatFloat(b.Y), formatFloat(b.Width), formatFloat(b.Height))
}

// CalculateIoU measures how much two boxes overlap.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical and 0.0 means they do not
// overlap at all. The intersection corners are the maximum of the two top-left
// corners and the minimum of the two bottom-right corners; a non-positive width
// or height there means no overlap. The union uses inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Box{X: 0, Y: 0, Width: 10, Height: 10}
//	b := Box{X: 5, Y: 5, Width: 10, Height: 10}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.X, o.X)
	iy1 := math32.Max(r.Y, o.Y)
	ix2 := math32.Min(r.Right(), o.Right())
	iy2 := math32.Min(r.Bottom(), o.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
