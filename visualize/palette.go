// Package visualize draws detections and composes the result images.
package visualize

import (
	"image/color"

	"github.com/pkg/errors"
)

// ErrClassOutOfRange is returned when a class id has no palette entry.
var ErrClassOutOfRange = errors.New("class id outside palette")

var (
	// Red is used for class 0 of the region network.
	Red = color.RGBA{R: 255, A: 255}
	// Green is used for the region class and every digit box.
	Green = color.RGBA{G: 255, A: 255}
)

// Palette maps class ids to drawing colours.
type Palette []color.RGBA

// RegionPalette colours the two classes of the region network.
var RegionPalette = Palette{Red, Green}

// Color returns the colour for classID.
//
// Unlike a raw table lookup, an id outside the palette is an error rather than
// a panic or a wrapped index.
//
// Arguments:
//   - classID: The detection's class.
//
// Returns:
//   - color.RGBA: The class colour.
//   - error: ErrClassOutOfRange for negative or too large ids.
func (p Palette) Color(classID int) (color.RGBA, error) {
	if classID < 0 || classID >= len(p) {
		return color.RGBA{}, errors.Wrapf(ErrClassOutOfRange, "class %d, palette has %d entries", classID, len(p))
	}
	return p[classID], nil
}
