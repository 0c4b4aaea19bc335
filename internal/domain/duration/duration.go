// Package duration renders predicted race durations for display.
package duration

import (
	"fmt"
	"math"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// Format rounds seconds to the nearest whole second and renders it as
// zero-padded HH:MM:SS. Hours are not clamped, so 90000 renders as
// "25:00:00". Negative and non-finite input renders as "00:00:00".
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00:00"
	}
	total := int64(math.Round(seconds))
	h := total / secondsPerHour
	m := (total % secondsPerHour) / secondsPerMinute
	s := total % secondsPerMinute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Minutes returns the whole minutes contained in seconds (floor).
func Minutes(seconds int) int {
	return seconds / secondsPerMinute
}
