// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"time"

	"github.com/nvr-ai/go-meter/images"
)

// Detection represents a single detection result.
type Detection struct {
	// The predicted class index of the result.
	ClassID int
	// The confidence score of the predicted class.
	Score float32
	// The bounding box, in pixels of the frame the detector was given.
	Box images.Box
}

// Batch is the output of one detector invocation.
type Batch struct {
	// Detections is never nil; a run that finds nothing yields an empty slice.
	Detections []Detection
	// Elapsed is the wall-clock time of the whole detector call.
	Elapsed time.Duration
}

// NewBatch builds a batch, normalising a nil slice to an empty one.
func NewBatch(detections []Detection, elapsed time.Duration) Batch {
	if detections == nil {
		detections = []Detection{}
	}
	return Batch{Detections: detections, Elapsed: elapsed}
}

// ElapsedMs returns the elapsed time in whole milliseconds.
func (b Batch) ElapsedMs() int64 {
	return b.Elapsed.Milliseconds()
}

// Len returns the number of detections.
func (b Batch) Len() int {
	return len(b.Detections)
}

// FirstOfClass returns the first detection carrying classID.
//
// Detections are ordered by descending score after suppression, so the first
// match is also the most confident one.
//
// Arguments:
//   - classID: The class to look for.
//
// Returns:
//   - Detection: The matching detection.
//   - bool: False when no detection has the class.
func (b Batch) FirstOfClass(classID int) (Detection, bool) {
	for _, d := range b.Detections {
		if d.ClassID == classID {
			return d, true
		}
	}
	return Detection{}, false
}
