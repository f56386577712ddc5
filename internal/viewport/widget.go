package viewport

import (
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// Widget is the native chart a viewport wraps. Implementations may fire
// their subscription callbacks synchronously from inside a setter or later
// from another goroutine; the Adapter copes with both.
type Widget interface {
	// CoordinateToLogical converts a pixel x offset into a logical bar
	// coordinate. ok is false when the pixel is outside the plot area.
	CoordinateToLogical(x float64) (logical float64, ok bool)
	VisibleLogicalRange() (viewsync.ViewRange, bool)
	SetVisibleLogicalRange(r viewsync.ViewRange) error
	RightOffset() int
	SetRightOffset(bars int) error
	SetCrosshairPosition(value float64, t time.Time, series viewsync.SeriesID) error
	ClearCrosshairPosition() error
	SubscribeVisibleRangeChange(fn func(viewsync.ViewRange)) (unsubscribe func())
	// SubscribeCrosshairMove delivers nil when the pointer leaves the chart.
	SubscribeCrosshairMove(fn func(*viewsync.CrosshairPosition)) (unsubscribe func())
}

// Bar is one OHLC data point.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// BarSource is implemented by widgets that can resolve a logical coordinate
// to the bar drawn there. Hover and magnet snapping need it.
type BarSource interface {
	BarAt(logical float64) (Bar, bool)
}

// Snap returns whichever of the bar's OHLC values is closest to price.
func (b Bar) Snap(price float64) float64 {
	best := b.Close
	bestDiff := abs(price - b.Close)
	for _, v := range []float64{b.Open, b.High, b.Low} {
		if d := abs(price - v); d < bestDiff {
			best, bestDiff = v, d
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Bus is the part of viewsync.Bus an Adapter depends on.
type Bus interface {
	Register(reg viewsync.Registration) (unregister func())
	PublishRange(source viewsync.ViewportID, r viewsync.ViewRange, rightOffset int) uint64
	PublishCrosshair(source viewsync.ViewportID, pos *viewsync.CrosshairPosition) uint64
	RequestReplay(requester viewsync.ViewportID) (uint64, bool)
	LastRange() (viewsync.RangeState, bool)
	LastCrosshair() (viewsync.CrosshairState, bool)
	MarkLeader(id viewsync.ViewportID)
	UnmarkLeader(id viewsync.ViewportID) bool
	IsLeader(id viewsync.ViewportID) bool
}
