package images

import "strconv"

// formatFloat prints the shortest decimal form that round-trips a float32.
func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
