package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestPaddedROI(t *testing.T) {
	bounds := image.Pt(640, 480)
	margin := Margin{X: 30, Y: 10}

	tests := []struct {
		name string
		box  Box
		want image.Rectangle
	}{
		{
			name: "inside frame",
			box:  Box{X: 100, Y: 100, Width: 200, Height: 150},
			want: image.Rect(70, 90, 330, 260),
		},
		{
			name: "clamped at origin",
			box:  Box{X: 10, Y: 5, Width: 50, Height: 50},
			want: image.Rect(0, 0, 90, 65),
		},
		{
			name: "clamped at far edges",
			box:  Box{X: 600, Y: 460, Width: 100, Height: 100},
			want: image.Rect(570, 450, 640, 480),
		},
		{
			name: "negative origin from decoder",
			box:  Box{X: -20, Y: -8, Width: 60, Height: 30},
			want: image.Rect(0, 0, 70, 32),
		},
		{
			name: "entirely outside collapses to empty",
			box:  Box{X: 700, Y: 500, Width: 10, Height: 10},
			want: image.Rect(640, 480, 640, 480),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PaddedROI(tt.box, margin, bounds)
			assert.Equal(t, tt.want, got)

			assert.GreaterOrEqual(t, got.Min.X, 0)
			assert.GreaterOrEqual(t, got.Min.Y, 0)
			assert.LessOrEqual(t, got.Max.X, bounds.X)
			assert.LessOrEqual(t, got.Max.Y, bounds.Y)
		})
	}
}

func TestCrop(t *testing.T) {
	src := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()

	crop := Crop(src, image.Rect(70, 90, 330, 260))
	defer crop.Close()
	require.False(t, crop.Empty())
	assert.Equal(t, 260, crop.Cols())
	assert.Equal(t, 170, crop.Rows())

	empty := Crop(src, image.Rect(640, 480, 640, 480))
	defer empty.Close()
	assert.True(t, empty.Empty())
}
