package images

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultStride is the alignment applied to padded dimensions when Auto is set.
const DefaultStride = 64

// ErrEmptyImage is returned when an operation needs pixels and the Mat has none.
var ErrEmptyImage = errors.New("image is empty")

// LetterboxOptions controls the aspect-preserving resize.
type LetterboxOptions struct {
	// Size is the network input size (width, height).
	Size image.Point
	// Color fills the padded border.
	Color color.RGBA
	// Auto reduces padding modulo Stride so the output stays stride-aligned
	// instead of matching Size exactly.
	Auto bool
	// Stride is the alignment used when Auto is set. Zero means DefaultStride.
	Stride int
	// ScaleFill stretches to Size without padding. Ignored when Auto is set.
	ScaleFill bool
	// ScaleUp allows enlarging images smaller than Size.
	ScaleUp bool
}

// DefaultLetterboxOptions returns the options used by the darknet detectors.
//
// Arguments:
//   - size: The network input size.
//
// Returns:
//   - LetterboxOptions: Gray (114) fill, stride-aligned, upscaling allowed.
func DefaultLetterboxOptions(size image.Point) LetterboxOptions {
	return LetterboxOptions{
		Size:    size,
		Color:   color.RGBA{R: 114, G: 114, B: 114, A: 0},
		Auto:    true,
		Stride:  DefaultStride,
		ScaleUp: true,
	}
}

// Padding is the border added on each side of the resized image.
type Padding struct {
	Top, Bottom, Left, Right int
}

// LetterboxGeometry describes how a source frame maps into the padded frame.
type LetterboxGeometry struct {
	// Scale is the effective (x, y) resize ratio.
	ScaleX, ScaleY float64
	// Unpadded is the size of the resized image before the border.
	Unpadded image.Point
	// HalfW and HalfH are the half padding amounts before rounding.
	HalfW, HalfH float64
	// Pad is the integer border applied on each side.
	Pad Padding
	// Output is the final padded size.
	Output image.Point
}

// ComputeLetterbox calculates the resize and border for a source size.
//
// The leading and trailing border of each axis are round(half-0.1) and
// round(half+0.1). When the padding is odd the extra pixel goes to the
// trailing edge; when it is even both edges get exactly half.
//
// Arguments:
//   - src: The source image size.
//   - opts: The letterbox options.
//
// Returns:
//   - LetterboxGeometry: Scale, padding and output size.
//
// @example
// geo := ComputeLetterbox(image.Pt(640, 480), DefaultLetterboxOptions(image.Pt(320, 320)))
// // geo.Unpadded == (320,240), geo.Pad == {Top: 8, Bottom: 8}, geo.Output == (320,256)
func ComputeLetterbox(src image.Point, opts LetterboxOptions) LetterboxGeometry {
	stride := opts.Stride
	if stride <= 0 {
		stride = DefaultStride
	}

	srcW, srcH := float64(src.X), float64(src.Y)
	dstW, dstH := float64(opts.Size.X), float64(opts.Size.Y)

	r := math.Min(dstH/srcH, dstW/srcW)
	if !opts.ScaleUp {
		r = math.Min(r, 1.0)
	}

	scaleX, scaleY := r, r
	unpadded := image.Pt(int(math.Round(srcW*r)), int(math.Round(srcH*r)))
	dw := opts.Size.X - unpadded.X
	dh := opts.Size.Y - unpadded.Y

	switch {
	case opts.Auto:
		dw %= stride
		dh %= stride
	case opts.ScaleFill:
		dw, dh = 0, 0
		unpadded = opts.Size
		scaleX, scaleY = dstW/srcW, dstH/srcH
	}

	halfW := float64(dw) / 2
	halfH := float64(dh) / 2
	pad := Padding{
		Top:    int(math.Round(halfH - 0.1)),
		Bottom: int(math.Round(halfH + 0.1)),
		Left:   int(math.Round(halfW - 0.1)),
		Right:  int(math.Round(halfW + 0.1)),
	}

	return LetterboxGeometry{
		ScaleX:   scaleX,
		ScaleY:   scaleY,
		Unpadded: unpadded,
		HalfW:    halfW,
		HalfH:    halfH,
		Pad:      pad,
		Output: image.Pt(
			unpadded.X+pad.Left+pad.Right,
			unpadded.Y+pad.Top+pad.Bottom,
		),
	}
}

// Letterbox resizes src preserving its aspect ratio and pads it with a constant border.
//
// The resize is skipped when the size does not change; the border is always applied.
// The caller owns the returned Mat.
//
// Arguments:
//   - src: The source frame.
//   - opts: The letterbox options.
//
// Returns:
//   - gocv.Mat: The padded frame.
//   - LetterboxGeometry: The geometry used, for mapping coordinates.
//   - error: ErrEmptyImage if src has no pixels.
func Letterbox(src gocv.Mat, opts LetterboxOptions) (gocv.Mat, LetterboxGeometry, error) {
	if src.Empty() || src.Rows() == 0 || src.Cols() == 0 {
		return gocv.NewMat(), LetterboxGeometry{}, ErrEmptyImage
	}
	if opts.Size.X <= 0 || opts.Size.Y <= 0 {
		return gocv.NewMat(), LetterboxGeometry{}, errors.Errorf("invalid letterbox size %v", opts.Size)
	}

	geo := ComputeLetterbox(image.Pt(src.Cols(), src.Rows()), opts)

	resized := src
	if geo.Unpadded.X != src.Cols() || geo.Unpadded.Y != src.Rows() {
		resized = gocv.NewMat()
		defer resized.Close()
		gocv.Resize(src, &resized, geo.Unpadded, 0, 0, gocv.InterpolationLinear)
	}

	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded,
		geo.Pad.Top, geo.Pad.Bottom, geo.Pad.Left, geo.Pad.Right,
		gocv.BorderConstant, opts.Color)

	return padded, geo, nil
}
