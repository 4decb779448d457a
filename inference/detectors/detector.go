package detectors

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/images"
	"github.com/nvr-ai/go-meter/inference"
	"github.com/nvr-ai/go-meter/models/postprocess"
)

// Detector runs one YOLO network over a frame: letterbox, forward pass,
// decode, suppress.
//
// Thresholds may be changed from another goroutine between calls; Detect
// itself must not be called concurrently because the engine is not safe for
// concurrent use.
type Detector struct {
	engine    inference.Engine
	name      string
	letterbox images.LetterboxOptions

	mu                  sync.RWMutex
	confidenceThreshold float32
	nmsThreshold        float32
}

// New creates a detector around an already loaded engine.
//
// The detector takes ownership of engine and closes it in Close.
//
// Arguments:
//   - engine: The loaded network.
//   - cfg: The detector configuration.
//
// Returns:
//   - *Detector: The detector.
//   - error: ErrInvalidConfig for out-of-range settings.
func New(engine inference.Engine, cfg Config) (*Detector, error) {
	if engine == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Detector{
		engine:              engine,
		name:                cfg.Name,
		letterbox:           images.DefaultLetterboxOptions(cfg.InputShape),
		confidenceThreshold: cfg.ConfidenceThreshold,
		nmsThreshold:        cfg.NMSThreshold,
	}, nil
}

// Open validates cfg, loads the engine it names and wraps it in a detector.
//
// Arguments:
//   - cfg: The detector configuration including engine artifacts.
//
// Returns:
//   - *Detector: The detector.
//   - error: A configuration or asset error.
func Open(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := inference.Open(cfg.Engine)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s network", cfg.Name)
	}

	d, err := New(engine, cfg)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return d, nil
}

// Name returns the label given in the configuration.
func (d *Detector) Name() string {
	return d.name
}

// Detect runs the network on frame.
//
// Boxes are expressed in the pixel space of frame itself. An empty frame, such
// as a fully clamped crop, yields an empty batch without touching the engine.
// The context is checked once before work starts; an in-flight forward pass
// is not interrupted.
//
// Arguments:
//   - ctx: Cancellation for the call.
//   - frame: The BGR image to search.
//
// Returns:
//   - postprocess.Batch: Surviving detections, highest score first, and the
//     wall-clock time of the whole call.
//   - error: A cancellation, preprocessing, engine or decode error.
func (d *Detector) Detect(ctx context.Context, frame gocv.Mat) (postprocess.Batch, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return postprocess.Batch{}, ctx.Err()
	default:
	}

	if frame.Empty() || frame.Cols() == 0 || frame.Rows() == 0 {
		return postprocess.NewBatch(nil, time.Since(start)), nil
	}

	padded, geo, err := images.Letterbox(frame, d.letterbox)
	if err != nil {
		return postprocess.Batch{}, errors.Wrap(err, "letterbox")
	}
	defer padded.Close()

	blob := gocv.BlobFromImage(padded, 1.0/255.0, geo.Output, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	outputs, err := d.engine.Forward(blob)
	if err != nil {
		return postprocess.Batch{}, errors.Wrapf(err, "%s forward pass", d.name)
	}

	conf, nms := d.Thresholds()
	candidates, err := postprocess.Decode(outputs, image.Pt(frame.Cols(), frame.Rows()), conf)
	if err != nil {
		return postprocess.Batch{}, errors.Wrapf(err, "%s decode", d.name)
	}

	kept := postprocess.ApplyGreedyNMS(candidates, postprocess.NMSConfig{
		ScoreThreshold: conf,
		IoUThreshold:   nms,
	})
	return postprocess.NewBatch(kept, time.Since(start)), nil
}

// SetThresholds updates the confidence and NMS thresholds for subsequent calls.
//
// Arguments:
//   - conf: Minimum objectness and class score, in [0,1].
//   - nms: IoU above which a lower-scored box is discarded, in [0,1].
//
// Returns:
//   - error: ErrInvalidConfig if either value is out of range; nothing changes then.
func (d *Detector) SetThresholds(conf, nms float32) error {
	if err := validateThresholds(conf, nms); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.confidenceThreshold = conf
	d.nmsThreshold = nms
	return nil
}

// Thresholds returns the current confidence and NMS thresholds.
func (d *Detector) Thresholds() (conf, nms float32) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.confidenceThreshold, d.nmsThreshold
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
