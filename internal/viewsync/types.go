package viewsync

import (
	"fmt"
	"math"
	"time"
)

// ViewportID names one mounted viewport.
type ViewportID string

// SeriesID names the series a crosshair position refers to.
type SeriesID string

// ViewRange is a visible range in logical (bar index) coordinates.
// Fractional values are allowed during smooth pans and zooms.
type ViewRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Bars returns the width of the range in logical units.
func (r ViewRange) Bars() float64 { return r.To - r.From }

// Mid returns the centre of the range.
func (r ViewRange) Mid() float64 { return (r.From + r.To) / 2 }

// Valid reports whether both ends and the width are finite and To is
// strictly greater than From.
func (r ViewRange) Valid() bool {
	return r.To > r.From && isFinite(r.From) && isFinite(r.To) && isFinite(r.To-r.From)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (r ViewRange) String() string { return fmt.Sprintf("[%g, %g]", r.From, r.To) }

// CrosshairPosition is a synchronized crosshair. A nil Time is the explicit
// cleared state.
type CrosshairPosition struct {
	Time      *time.Time `json:"time"`
	Value     float64    `json:"value"`
	SeriesRef SeriesID   `json:"series_ref,omitempty"`
}

// Cleared reports whether the position represents a cleared crosshair.
func (p *CrosshairPosition) Cleared() bool { return p == nil || p.Time == nil }

// Kind identifies the payload carried by a Message.
type Kind int

const (
	RangeChanged Kind = iota + 1
	CrosshairMoved
)

func (k Kind) String() string {
	switch k {
	case RangeChanged:
		return "range_changed"
	case CrosshairMoved:
		return "crosshair_moved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Message is one stamped publication. Seq is assigned by the Sequencer at
// publish time and never changed afterwards.
type Message struct {
	Kind        Kind               `json:"kind"`
	SourceID    ViewportID         `json:"source_id"`
	Seq         uint64             `json:"seq"`
	Range       ViewRange          `json:"range,omitzero"`
	RightOffset int                `json:"right_offset,omitempty"`
	Crosshair   *CrosshairPosition `json:"crosshair,omitempty"`
}

// Registration is what a viewport exposes to the Bus. Apply methods may
// return an error or panic; the Bus isolates either per subscriber.
type Registration interface {
	ID() ViewportID
	ApplyRange(r ViewRange, rightOffset int, seq uint64) error
	ApplyCrosshair(pos *CrosshairPosition, seq uint64) error
}
