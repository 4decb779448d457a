package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

func TestToDense(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}

	tests := []struct {
		name    string
		shape   []int
		want    tensor.Shape
		wantErr bool
	}{
		{"already 2-D", []int{2, 3}, tensor.Shape{2, 3}, false},
		{"leading batch", []int{1, 2, 3}, tensor.Shape{2, 3}, false},
		{"two leading units", []int{1, 1, 6, 1}, tensor.Shape{6, 1}, false},
		{"batch of two", []int{2, 1, 3}, nil, true},
		{"rank 1", []int{6}, nil, true},
		{"short data", []int{3, 3}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := toDense(tt.shape, data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Shape())
			assert.Equal(t, data, d.Data())
		})
	}
}

func TestToDenseCopies(t *testing.T) {
	data := []float32{1, 2}
	d, err := toDense([]int{1, 2}, data)
	require.NoError(t, err)

	data[0] = 9
	assert.Equal(t, []float32{1, 2}, d.Data())
}

func TestMatToDense(t *testing.T) {
	m := gocv.NewMatWithSize(4, 7, gocv.MatTypeCV32F)
	defer m.Close()
	m.SetFloatAt(2, 5, 0.75)

	d, err := MatToDense(m)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 7}, d.Shape())

	v, err := d.At(2, 5)
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), v)
}

func TestMatToDenseRejectsNonFloat(t *testing.T) {
	m := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8U)
	defer m.Close()

	_, err := MatToDense(m)
	assert.Error(t, err)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Spec{Backend: "tflite"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpenMissingArtifact(t *testing.T) {
	_, err := Open(Spec{Backend: EngineDarknet, Config: t.TempDir() + "/missing.cfg", Weights: "x"})
	assert.Error(t, err)
}
