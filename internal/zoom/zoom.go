// Package zoom holds the pure range arithmetic used by viewports: the
// cursor-anchored zoom, wheel delta normalisation, the minimum-bars floor
// and panning.
package zoom

import (
	"math"
	"strings"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// Direction is the sense of a zoom step.
type Direction int

const (
	In Direction = iota + 1
	Out
)

// ParseDirection accepts "in" or "out" (case-insensitive).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in":
		return In, true
	case "out":
		return Out, true
	}
	return 0, false
}

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return "unknown"
}

// Default step factors applied to the visible bar count per zoom step.
const (
	StepIn  = 0.85
	StepOut = 1.15
)

// Step returns the default factor for d.
func (d Direction) Step() float64 {
	if d == In {
		return StepIn
	}
	return StepOut
}

// DefaultMinBars is the only floor currently defined.
const DefaultMinBars = 10

// MinBars returns the smallest number of bars a viewport may show at the
// given resolution. Every resolution currently shares one floor.
func MinBars(resolution string) float64 {
	return DefaultMinBars
}

// Input describes one anchored zoom step.
type Input struct {
	Range viewsync.ViewRange
	// Cursor is the logical coordinate under the pointer; nil when the
	// pointer could not be resolved (outside the plot area).
	Cursor      *float64
	Factor      float64
	MinBars     float64
	RightOffset int
}

// Output is the zoomed range and the untouched right offset.
type Output struct {
	Range       viewsync.ViewRange
	RightOffset int
}

// Anchored scales the visible range by in.Factor while keeping the logical
// point under the cursor at the same fractional position in the window.
// The result is never narrower than in.MinBars.
func Anchored(in Input) Output {
	from, to := in.Range.From, in.Range.To
	cursor := (from + to) / 2
	if in.Cursor != nil {
		cursor = *in.Cursor
	}

	currentBars := to - from
	if currentBars <= 0 {
		currentBars = in.MinBars
	}
	if currentBars <= 0 {
		currentBars = 1
	}

	newBars := math.Max(currentBars*in.Factor, in.MinBars)
	leftRatio := (cursor - from) / currentBars

	newFrom := cursor - leftRatio*newBars
	return Output{
		Range:       viewsync.ViewRange{From: newFrom, To: newFrom + newBars},
		RightOffset: in.RightOffset,
	}
}

// Wheel sensitivity and line-mode conversion for WheelFactor.
const (
	WheelSensitivity = 0.0015
	LinePixels       = 33
	// MaxWheelDelta bounds one event's pixel delta, capping a single step
	// at exp(1.5) in either direction.
	MaxWheelDelta = 1000
	// DeltaModeLine matches DOM WheelEvent.DOM_DELTA_LINE.
	DeltaModeLine = 1
)

// WheelFactor converts a vertical wheel delta into a zoom factor. Positive
// deltas (scrolling down) zoom out, negative deltas zoom in; a 100px
// mouse-wheel notch gives roughly the 15% of a fixed step, while small
// touchpad deltas give proportionally gentler steps. Deltas beyond
// MaxWheelDelta are clamped and a NaN delta does not zoom.
func WheelFactor(deltaY float64, deltaMode int) float64 {
	if math.IsNaN(deltaY) {
		return 1
	}
	if deltaMode == DeltaModeLine {
		deltaY *= LinePixels
	}
	deltaY = math.Max(-MaxWheelDelta, math.Min(MaxWheelDelta, deltaY))
	return math.Exp(deltaY * WheelSensitivity)
}

// IsHorizontalScroll reports whether a wheel event is dominated by its
// horizontal component, in which case it is a pan gesture, not a zoom.
func IsHorizontalScroll(deltaX, deltaY float64) bool {
	return math.Abs(deltaX) > math.Abs(deltaY)
}

// ClampMinBars widens r around its centre so it spans at least minBars.
// The second return value reports whether r was changed.
func ClampMinBars(r viewsync.ViewRange, minBars float64) (viewsync.ViewRange, bool) {
	if r.To-r.From >= minBars {
		return r, false
	}
	c := r.Mid()
	return viewsync.ViewRange{From: c - minBars/2, To: c + minBars/2}, true
}

// Pan shifts r by bars logical units; positive values move towards newer bars.
func Pan(r viewsync.ViewRange, bars float64) viewsync.ViewRange {
	return viewsync.ViewRange{From: r.From + bars, To: r.To + bars}
}
