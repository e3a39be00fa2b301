package acquire

import (
	"fmt"
	"math"

	"github.com/cesargomez89/spotdown/internal/constants"
)

// Window is the accepted duration range in whole seconds. The zero value
// accepts anything.
type Window struct {
	Min int
	Max int
}

// Margin is the tolerance around an expected duration of d seconds. Short
// tracks get a tight margin so previews are rejected, long ones scale with
// length.
func Margin(d int) int {
	switch {
	case d <= constants.ShortTrackLimit:
		return constants.ShortMargin
	case d <= constants.MediumTrackLimit:
		return constants.MediumMargin
	default:
		return max(constants.MediumMargin, d/10)
	}
}

// NewWindow builds the window for a track whose metadata says expectedMs.
func NewWindow(expectedMs int) Window {
	d := expectedMs / 1000
	if d <= 0 {
		return Window{}
	}
	m := Margin(d)
	return Window{Min: max(0, d-m), Max: d + m}
}

func (w Window) Bounded() bool {
	return w.Max > 0
}

// Contains reports whether a candidate of sec seconds is acceptable. A
// negative value means the duration is unknown.
func (w Window) Contains(sec float64) bool {
	if !w.Bounded() {
		return true
	}
	if sec < 0 || math.IsNaN(sec) {
		return false
	}
	return sec >= float64(w.Min) && sec <= float64(w.Max)
}

// MatchFilter renders the window in yt-dlp --match-filter syntax.
func (w Window) MatchFilter() string {
	if !w.Bounded() {
		return ""
	}
	return fmt.Sprintf("duration >= %d & duration <= %d", w.Min, w.Max)
}

func (w Window) String() string {
	if !w.Bounded() {
		return "any"
	}
	return fmt.Sprintf("%d-%ds", w.Min, w.Max)
}
