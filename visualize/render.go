package visualize

import (
	"image"
	"strconv"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/common"
	"github.com/nvr-ai/go-meter/models/postprocess"
)

// Drawing constants.
const (
	RegionThickness = 4
	DigitThickness  = 1
	LabelScale      = 0.65
	LabelInset      = 3
	SeparatorHeight = 10
)

// Layer is an image together with the detections computed against it.
type Layer struct {
	Image      gocv.Mat
	Detections []postprocess.Detection
}

// Visualization holds the rendered images of one run. The caller owns the
// Mats and must Close the Visualization.
type Visualization struct {
	// Composite is the digits view stacked above the annotated frame, or just
	// the annotated frame when there is no digits stage.
	Composite gocv.Mat
	// Region is the full frame with region boxes.
	Region gocv.Mat
	// Digits is the annotated crop beside the digits-only canvas.
	Digits common.Optional[gocv.Mat]
}

// Close releases every Mat.
func (v *Visualization) Close() error {
	v.Composite.Close()
	v.Region.Close()
	if d, ok := v.Digits.Get(); ok {
		d.Close()
	}
	v.Digits = common.None[gocv.Mat]()
	return nil
}

// Visualizer renders pipeline results.
type Visualizer struct {
	regionPalette Palette
}

// New creates a visualizer that colours region boxes from palette.
func New(palette Palette) *Visualizer {
	return &Visualizer{regionPalette: palette}
}

// Render draws both stages and builds the composite.
//
// The inputs are not modified. Every region class id must be in the palette.
//
// Arguments:
//   - region: The full frame and its region detections.
//   - digits: The crop and its digit detections, absent when no region was found.
//
// Returns:
//   - Visualization: Owned images.
//   - error: ErrClassOutOfRange, or an error for an empty frame.
func (v *Visualizer) Render(region Layer, digits common.Optional[Layer]) (Visualization, error) {
	if region.Image.Empty() {
		return Visualization{}, errors.New("region image is empty")
	}

	annotated := region.Image.Clone()
	for _, d := range region.Detections {
		c, err := v.regionPalette.Color(d.ClassID)
		if err != nil {
			annotated.Close()
			return Visualization{}, err
		}
		gocv.Rectangle(&annotated, d.Box.Rect(), c, RegionThickness)
	}

	layer, ok := digits.Get()
	if !ok {
		return Visualization{
			Composite: annotated.Clone(),
			Region:    annotated,
			Digits:    common.None[gocv.Mat](),
		}, nil
	}

	digitsView := renderDigits(layer)
	composite := stack(digitsView, annotated)

	return Visualization{
		Composite: composite,
		Region:    annotated,
		Digits:    common.Some(digitsView),
	}, nil
}

// renderDigits returns the annotated crop beside a black canvas carrying the
// same boxes and their class ids.
func renderDigits(layer Layer) gocv.Mat {
	if layer.Image.Empty() {
		return gocv.NewMat()
	}

	crop := layer.Image.Clone()
	defer crop.Close()
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), crop.Rows(), crop.Cols(), crop.Type())
	defer canvas.Close()

	for _, d := range layer.Detections {
		rect := d.Box.Rect()
		gocv.Rectangle(&crop, rect, Green, DigitThickness)
		gocv.Rectangle(&canvas, rect, Green, DigitThickness)

		label := image.Pt(int(d.Box.X)+LabelInset, int(d.Box.Y+d.Box.Height)-LabelInset)
		gocv.PutText(&canvas, strconv.Itoa(d.ClassID), label, gocv.FontHersheySimplex, LabelScale, Green, 1)
	}

	view := gocv.NewMat()
	gocv.Hconcat(crop, canvas, &view)
	return view
}

// stack resizes top to the width of bottom and stacks them with a black band between.
func stack(top, bottom gocv.Mat) gocv.Mat {
	if top.Empty() {
		return bottom.Clone()
	}

	width := bottom.Cols()
	height := max(1, int(float64(top.Rows())*float64(width)/float64(top.Cols())+0.5))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(top, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	band := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), SeparatorHeight, width, bottom.Type())
	defer band.Close()

	upper := gocv.NewMat()
	defer upper.Close()
	gocv.Vconcat(resized, band, &upper)

	out := gocv.NewMat()
	gocv.Vconcat(upper, bottom, &out)
	return out
}
