package controller

import (
	"context"
	"image"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/images"
	"github.com/nvr-ai/go-meter/logging"
	"github.com/nvr-ai/go-meter/metrics"
	"github.com/nvr-ai/go-meter/models/postprocess"
	"github.com/nvr-ai/go-meter/storage"
)

// MockDetector returns a canned batch and remembers the frames it was given.
type MockDetector struct {
	name   string
	batch  postprocess.Batch
	err    error
	frames []image.Point
}

func (m *MockDetector) Detect(ctx context.Context, frame gocv.Mat) (postprocess.Batch, error) {
	if err := ctx.Err(); err != nil {
		return postprocess.Batch{}, err
	}
	m.frames = append(m.frames, image.Pt(frame.Cols(), frame.Rows()))
	if m.err != nil {
		return postprocess.Batch{}, m.err
	}
	return m.batch, nil
}

func (m *MockDetector) Name() string { return m.name }

func newRegion(dets ...postprocess.Detection) *MockDetector {
	return &MockDetector{name: "region", batch: postprocess.NewBatch(dets, 12*time.Millisecond)}
}

func newDigits(dets ...postprocess.Detection) *MockDetector {
	return &MockDetector{name: "digits", batch: postprocess.NewBatch(dets, 4*time.Millisecond)}
}

func det(class int, score float32, x, y, w, h float32) postprocess.Detection {
	return postprocess.Detection{
		ClassID: class,
		Score:   score,
		Box:     images.Box{X: x, Y: y, Width: w, Height: h},
	}
}

func testFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 480, 640, gocv.MatTypeCV8UC3)
}

func TestNew(t *testing.T) {
	_, err := New(nil, newDigits(), DefaultOptions())
	assert.Error(t, err)

	_, err = New(newRegion(), nil, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.Margin.X = -1
	_, err = New(newRegion(), newDigits(), opts)
	assert.Error(t, err)

	c, err := New(newRegion(), newDigits(), DefaultOptions(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1, opts.RegionClassID)
	assert.Equal(t, images.Margin{X: 30, Y: 10}, opts.Margin)
}

func TestDetectCropsDisplayRegion(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	region := newRegion(
		det(0, 0.9, 0, 0, 50, 50),
		det(1, 0.8, 100, 100, 200, 150),
		det(1, 0.7, 400, 300, 100, 100),
	)
	digits := newDigits(det(3, 0.95, 10, 20, 15, 30), det(7, 0.9, 40, 20, 15, 30))

	c, err := New(region, digits, DefaultOptions(), WithLogger(logging.Discard()))
	require.NoError(t, err)

	result, err := c.Detect(context.Background(), frame)
	require.NoError(t, err)
	defer result.Close()

	assert.Equal(t, 3, result.Region.Batch.Len())

	roi, ok := result.ROI.Get()
	require.True(t, ok)
	assert.Equal(t, image.Rect(70, 90, 330, 260), roi)

	stage, ok := result.Digits.Get()
	require.True(t, ok)
	assert.Equal(t, 260, stage.Image.Cols())
	assert.Equal(t, 170, stage.Image.Rows())
	assert.Equal(t, 2, stage.Batch.Len())

	require.Len(t, digits.frames, 1)
	assert.Equal(t, image.Pt(260, 170), digits.frames[0])
	assert.Equal(t, []image.Point{image.Pt(640, 480)}, region.frames)
}

func TestDetectWithoutDisplay(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	tests := []struct {
		name   string
		region *MockDetector
	}{
		{name: "no detections", region: newRegion()},
		{name: "only other classes", region: newRegion(det(0, 0.9, 10, 10, 50, 50), det(2, 0.8, 100, 100, 20, 20))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digits := newDigits(det(1, 0.9, 0, 0, 5, 5))
			c, err := New(tt.region, digits, DefaultOptions(), WithLogger(logging.Discard()))
			require.NoError(t, err)

			result, err := c.Detect(context.Background(), frame)
			require.NoError(t, err)
			defer result.Close()

			assert.False(t, result.Digits.Present())
			assert.False(t, result.ROI.Present())
			assert.Empty(t, digits.frames)
		})
	}
}

func TestDetectClampsToFrame(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	region := newRegion(det(1, 0.9, 600, 440, 100, 100))
	digits := newDigits()

	c, err := New(region, digits, DefaultOptions(), WithLogger(logging.Discard()))
	require.NoError(t, err)

	result, err := c.Detect(context.Background(), frame)
	require.NoError(t, err)
	defer result.Close()

	roi, ok := result.ROI.Get()
	require.True(t, ok)
	assert.Equal(t, image.Rect(570, 430, 640, 480), roi)

	stage, ok := result.Digits.Get()
	require.True(t, ok)
	assert.Equal(t, 0, stage.Batch.Len())
}

func TestDetectErrors(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	t.Run("region failure", func(t *testing.T) {
		region := newRegion()
		region.err = errors.New("forward failed")
		digits := newDigits()

		c, err := New(region, digits, DefaultOptions(), WithLogger(logging.Discard()))
		require.NoError(t, err)

		_, err = c.Detect(context.Background(), frame)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "region stage")
		assert.Empty(t, digits.frames)
	})

	t.Run("digits failure", func(t *testing.T) {
		region := newRegion(det(1, 0.9, 100, 100, 200, 150))
		digits := newDigits()
		digits.err = errors.New("forward failed")

		c, err := New(region, digits, DefaultOptions(), WithLogger(logging.Discard()))
		require.NoError(t, err)

		_, err = c.Detect(context.Background(), frame)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "digits stage")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c, err := New(newRegion(), newDigits(), DefaultOptions(), WithLogger(logging.Discard()))
		require.NoError(t, err)

		_, err = c.Detect(ctx, frame)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir(), storage.Options{
		Now:         func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 250*int(time.Millisecond), time.UTC) },
		Environment: func() string { return "test-host" },
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	return store
}

func TestProcessSavesRead(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	store := openStore(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	c, err := New(
		newRegion(det(1, 0.8, 100, 100, 200, 150)),
		newDigits(det(3, 0.95, 10, 20, 15, 30)),
		DefaultOptions(),
		WithStore(store),
		WithMetrics(m),
		WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	before := images.ComputeMatChecksum(frame)

	outcome, err := c.Process(context.Background(), frame)
	require.NoError(t, err)
	defer outcome.Close()

	assert.Equal(t, before, images.ComputeMatChecksum(frame))
	assert.True(t, outcome.Visualization.Digits.Present())
	assert.Equal(t, 640, outcome.Visualization.Composite.Cols())

	rec, ok := outcome.Record.Get()
	require.True(t, ok)
	for _, a := range []storage.Artifact{
		storage.ArtifactOriginal,
		storage.ArtifactComposite,
		storage.ArtifactRegion,
		storage.ArtifactScreen,
		storage.ArtifactDigits,
		storage.ArtifactReport,
	} {
		path, ok := rec.Path(a)
		require.True(t, ok, a)
		assert.FileExists(t, path)
	}

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(metrics.OutcomeRead)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageDetections.WithLabelValues("digits")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsSaved))
}

func TestProcessRegionOnly(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	store := openStore(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	c, err := New(
		newRegion(det(0, 0.8, 100, 100, 200, 150)),
		newDigits(),
		DefaultOptions(),
		WithStore(store),
		WithMetrics(m),
		WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	outcome, err := c.Process(context.Background(), frame)
	require.NoError(t, err)
	defer outcome.Close()

	assert.False(t, outcome.Result.Digits.Present())
	assert.False(t, outcome.Visualization.Digits.Present())

	rec, ok := outcome.Record.Get()
	require.True(t, ok)
	_, ok = rec.Path(storage.ArtifactScreen)
	assert.False(t, ok)

	path, ok := rec.Path(storage.ArtifactReport)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.True(t, strings.HasPrefix(report, "test-host\n"))
	assert.Contains(t, report, "Detection stage #1: Digits\nnone\n")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(metrics.OutcomeRegionOnly)))
}

func TestProcessWithoutStore(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	c, err := New(newRegion(), newDigits(), DefaultOptions(), WithLogger(logging.Discard()))
	require.NoError(t, err)

	outcome, err := c.Process(context.Background(), frame)
	require.NoError(t, err)
	defer outcome.Close()

	assert.False(t, outcome.Record.Present())
	assert.False(t, outcome.Visualization.Composite.Empty())
}

func TestProcessFailureWritesNothing(t *testing.T) {
	frame := testFrame()
	defer frame.Close()

	store := openStore(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	digits := newDigits()
	digits.err = errors.New("forward failed")
	c, err := New(
		newRegion(det(1, 0.8, 100, 100, 200, 150)),
		digits,
		DefaultOptions(),
		WithStore(store),
		WithMetrics(m),
		WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	_, err = c.Process(context.Background(), frame)
	require.Error(t, err)

	assert.Equal(t, 0, store.Len())
	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(metrics.OutcomeError)))
}
