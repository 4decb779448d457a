// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/nvr-ai/go-meter/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	ScoreThreshold float32 // Candidates below this score are dropped before suppression.
	IoUThreshold   float32 // Overlap threshold for suppression.
	ClassAware     bool    // If true, suppress only within same class.
}

// Suppress runs class-agnostic greedy Non-Maximum Suppression over parallel
// box and score slices.
//
// Candidates scoring below confThreshold are dropped. The rest are visited in
// descending score order (ties keep input order); each visited candidate is
// kept and every later candidate overlapping it by more than iouThreshold is
// discarded. Class is ignored: two different classes whose boxes overlap
// heavily suppress each other.
//
// Arguments:
//   - boxes: Candidate boxes.
//   - scores: Candidate scores, parallel to boxes.
//   - confThreshold: Minimum score to be considered at all.
//   - iouThreshold: IoU above which a lower-scored candidate is discarded.
//
// Returns:
//   - []int: Indices into boxes of the survivors, highest score first.
//
// @example
// keep := postprocess.Suppress(boxes, scores, 0.3, 0.4)
func Suppress(boxes []images.Box, scores []float32, confThreshold, iouThreshold float32) []int {
	if len(boxes) != len(scores) {
		panic(fmt.Sprintf("postprocess: %d boxes but %d scores", len(boxes), len(scores)))
	}

	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if s >= confThreshold {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	keep := []int{}
	suppressed := make([]bool, len(order))
	for i, idx := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, idx)

		for j := i + 1; j < len(order); j++ {
			if suppressed[j] {
				continue
			}
			if images.CalculateIoU(boxes[idx], boxes[order[j]]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression on detections.
//
// With ClassAware unset this is exactly Suppress; with it set, only
// detections of the same class suppress each other.
//
// Arguments:
//   - detections: Candidate detections in any order.
//   - config: Thresholds and class policy.
//
// Returns:
//   - []Detection: Survivors by descending score, never nil.
func ApplyGreedyNMS(detections []Detection, config NMSConfig) []Detection {
	if !config.ClassAware {
		boxes := make([]images.Box, len(detections))
		scores := make([]float32, len(detections))
		for i, d := range detections {
			boxes[i] = d.Box
			scores[i] = d.Score
		}

		filtered := []Detection{}
		for _, i := range Suppress(boxes, scores, config.ScoreThreshold, config.IoUThreshold) {
			filtered = append(filtered, detections[i])
		}
		return filtered
	}

	byClass := map[int][]Detection{}
	for _, d := range detections {
		byClass[d.ClassID] = append(byClass[d.ClassID], d)
	}

	filtered := []Detection{}
	for _, classID := range slices.Sorted(maps.Keys(byClass)) {
		filtered = append(filtered, ApplyGreedyNMS(byClass[classID], NMSConfig{
			ScoreThreshold: config.ScoreThreshold,
			IoUThreshold:   config.IoUThreshold,
		})...)
	}
	slices.SortStableFunc(filtered, func(a, b Detection) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return filtered
}
