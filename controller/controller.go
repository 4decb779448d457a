// Package controller - Runs the two-stage meter reading pipeline over a single frame.
package controller

import (
	"context"
	"image"
	"log/slog"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/common"
	"github.com/nvr-ai/go-meter/images"
	"github.com/nvr-ai/go-meter/metrics"
	"github.com/nvr-ai/go-meter/models/postprocess"
	"github.com/nvr-ai/go-meter/storage"
	"github.com/nvr-ai/go-meter/visualize"
)

// Detector is an interface for a detector.
type Detector interface {
	Detect(ctx context.Context, frame gocv.Mat) (postprocess.Batch, error)
	Name() string
}

// Options tunes the hand-off between the two stages.
type Options struct {
	// RegionClassID is the region network class that marks the meter display.
	RegionClassID int
	// Margin is the fixed expansion around the display box before cropping.
	Margin images.Margin
}

// DefaultOptions returns class 1 with a 30x10 pixel margin.
func DefaultOptions() Options {
	return Options{
		RegionClassID: 1,
		Margin:        images.Margin{X: 30, Y: 10},
	}
}

// Option attaches an optional collaborator to a Controller.
type Option func(*Controller)

// WithVisualizer replaces the default region palette visualizer.
func WithVisualizer(v *visualize.Visualizer) Option {
	return func(c *Controller) { c.visualizer = v }
}

// WithStore persists every processed run.
func WithStore(s *storage.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics records stage and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// StageResult pairs a batch with the image it was computed against.
type StageResult struct {
	Image gocv.Mat
	Batch postprocess.Batch
}

// Result is the outcome of both detection stages.
//
// Region.Image is the caller's frame and is not owned by the Result. The
// digits crop is owned and released by Close.
type Result struct {
	Region StageResult
	// Digits is absent when no region detection was found, and present (possibly
	// with zero detections) otherwise.
	Digits common.Optional[StageResult]
	// ROI is the crop rectangle in frame coordinates, present with Digits.
	// Digit boxes are relative to ROI.Min and are not re-projected.
	ROI common.Optional[image.Rectangle]
}

// Close releases the digits crop.
func (r *Result) Close() error {
	if d, ok := r.Digits.Get(); ok {
		d.Image.Close()
	}
	r.Digits = common.None[StageResult]()
	return nil
}

// Outcome is everything produced by Process.
type Outcome struct {
	Result        Result
	Visualization visualize.Visualization
	// Record is absent when no store is configured.
	Record common.Optional[storage.Record]
}

// Close releases the crop and every rendered image.
func (o *Outcome) Close() error {
	o.Visualization.Close()
	return o.Result.Close()
}

// Controller orchestrates a region detector followed by a digits detector.
//
// It keeps no state between calls. It is not safe for concurrent use; callers
// serialise runs.
type Controller struct {
	region     Detector
	digits     Detector
	opts       Options
	visualizer *visualize.Visualizer
	store      *storage.Store
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a controller.
//
// Arguments:
//   - region: The detector that locates the meter display.
//   - digits: The detector run on the display crop.
//   - opts: Stage hand-off options.
//   - deps: Optional collaborators.
//
// Returns:
//   - *Controller: The controller.
//   - error: An error if a detector is missing or the margin is negative.
//
// @example
//
//	ctl, err := controller.New(regionDetector, digitsDetector, controller.DefaultOptions(),
//	    controller.WithStore(store),
//	    controller.WithLogger(logger),
//	)
func New(region, digits Detector, opts Options, deps ...Option) (*Controller, error) {
	if region == nil || digits == nil {
		return nil, errors.New("both region and digits detectors are required")
	}
	if opts.Margin.X < 0 || opts.Margin.Y < 0 {
		return nil, errors.Errorf("margin %+v must not be negative", opts.Margin)
	}

	c := &Controller{
		region:     region,
		digits:     digits,
		opts:       opts,
		visualizer: visualize.New(visualize.RegionPalette),
		logger:     slog.Default(),
	}
	for _, dep := range deps {
		dep(c)
	}
	c.logger = c.logger.With("component", "controller")
	return c, nil
}

// Detect runs both stages on frame.
//
// Region search runs on the full frame. If a detection of RegionClassID is
// found, the frame is cropped to its box plus the margin, clamped to the
// frame, and the digits detector runs on the crop. Otherwise Digits is absent.
//
// Arguments:
//   - ctx: Cancellation, checked by each detector before it starts.
//   - frame: The BGR frame.
//
// Returns:
//   - Result: Both stages; the caller must Close it.
//   - error: An error from either detector.
func (c *Controller) Detect(ctx context.Context, frame gocv.Mat) (Result, error) {
	regionBatch, err := c.runStage(ctx, c.region, frame)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Region: StageResult{Image: frame, Batch: regionBatch},
		Digits: common.None[StageResult](),
		ROI:    common.None[image.Rectangle](),
	}

	display, ok := regionBatch.FirstOfClass(c.opts.RegionClassID)
	if !ok {
		c.logger.Debug("no display found", "detections", regionBatch.Len())
		return result, nil
	}

	roi := images.PaddedROI(display.Box, c.opts.Margin, image.Pt(frame.Cols(), frame.Rows()))
	crop := images.Crop(frame, roi)

	digitsBatch, err := c.runStage(ctx, c.digits, crop)
	if err != nil {
		crop.Close()
		return Result{}, err
	}

	result.Digits = common.Some(StageResult{Image: crop, Batch: digitsBatch})
	result.ROI = common.Some(roi)
	return result, nil
}

func (c *Controller) runStage(ctx context.Context, d Detector, frame gocv.Mat) (postprocess.Batch, error) {
	batch, err := d.Detect(ctx, frame)
	if err != nil {
		return postprocess.Batch{}, errors.Wrapf(err, "%s stage", d.Name())
	}

	c.logger.Debug("stage finished",
		"stage", d.Name(),
		"detections", batch.Len(),
		"elapsed_ms", batch.ElapsedMs())
	if c.metrics != nil {
		c.metrics.RecordStage(d.Name(), batch.Elapsed.Seconds(), batch.Len())
	}
	return batch, nil
}

// Process runs Detect, renders the result and saves it when a store is configured.
//
// A failed run produces no record.
//
// Arguments:
//   - ctx: Cancellation for the detection stages.
//   - frame: The BGR frame.
//
// Returns:
//   - Outcome: The result, its rendering and the saved record; the caller must Close it.
//   - error: A detection, rendering or storage error.
func (c *Controller) Process(ctx context.Context, frame gocv.Mat) (Outcome, error) {
	outcome, err := c.process(ctx, frame)
	if err != nil {
		c.recordRun(metrics.OutcomeError)
		c.logger.Error("run failed", "error", err)
		return Outcome{}, err
	}

	if outcome.Result.Digits.Present() {
		c.recordRun(metrics.OutcomeRead)
	} else {
		c.recordRun(metrics.OutcomeRegionOnly)
	}
	return outcome, nil
}

func (c *Controller) process(ctx context.Context, frame gocv.Mat) (Outcome, error) {
	result, err := c.Detect(ctx, frame)
	if err != nil {
		return Outcome{}, err
	}

	digitsLayer := common.None[visualize.Layer]()
	if d, ok := result.Digits.Get(); ok {
		digitsLayer = common.Some(visualize.Layer{Image: d.Image, Detections: d.Batch.Detections})
	}

	vis, err := c.visualizer.Render(
		visualize.Layer{Image: frame, Detections: result.Region.Batch.Detections},
		digitsLayer,
	)
	if err != nil {
		result.Close()
		return Outcome{}, errors.Wrap(err, "rendering result")
	}

	outcome := Outcome{
		Result:        result,
		Visualization: vis,
		Record:        common.None[storage.Record](),
	}
	if c.store == nil {
		return outcome, nil
	}

	rec, err := c.store.Save(artifactsOf(frame, outcome))
	if err != nil {
		outcome.Close()
		return Outcome{}, errors.Wrap(err, "saving result")
	}
	if c.metrics != nil {
		c.metrics.RecordSave(c.store.Len())
	}
	outcome.Record = common.Some(rec)
	return outcome, nil
}

func artifactsOf(frame gocv.Mat, o Outcome) storage.Artifacts {
	a := storage.Artifacts{
		Original:    frame,
		Composite:   o.Visualization.Composite,
		Region:      o.Visualization.Region,
		Screen:      common.None[gocv.Mat](),
		Digits:      o.Visualization.Digits,
		RegionBatch: o.Result.Region.Batch,
		DigitsBatch: common.None[postprocess.Batch](),
	}
	if d, ok := o.Result.Digits.Get(); ok {
		a.Screen = common.Some(d.Image)
		a.DigitsBatch = common.Some(d.Batch)
	}
	return a
}

func (c *Controller) recordRun(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordRun(outcome)
	}
}
