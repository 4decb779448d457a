// Package common - Values shared across the detection, rendering and storage packages.
package common

// Optional holds a value that may be absent.
//
// It is used wherever a pipeline stage can be skipped entirely, so that "skipped"
// and "ran but found nothing" stay distinguishable at every call site.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
//
// Arguments:
//   - v: The value to wrap.
//
// Returns:
//   - Optional[T]: A present optional.
//
// @example
// digits := common.Some(stage)
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value of type T.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the wrapped value and whether it is present.
//
// Returns:
//   - T: The value, or the zero value when absent.
//   - bool: True when a value is present.
//
// @example
//
//	if stage, ok := result.Digits.Get(); ok {
//	    fmt.Println(len(stage.Batch.Detections))
//	}
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held.
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the held value or fallback when absent.
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}
