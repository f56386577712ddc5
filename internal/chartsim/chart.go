// Package chartsim is an in-memory chart widget. It behaves like a
// lightweight charting library as far as the viewport adapter can tell:
// setters fire the same change notifications a user gesture would, either
// synchronously or on the next frame.
package chartsim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// ErrDetached is returned by setters after Detach.
var ErrDetached = errors.New("chart detached")

// Options configures a Chart.
type Options struct {
	// Width of the plot area in pixels. Defaults to 800.
	Width float64
	Bars  []viewport.Bar
	// Range is the initial visible range. Defaults to the last 100 bars.
	Range       *viewsync.ViewRange
	RightOffset int
	Series      viewsync.SeriesID
	// Notify delivers change notifications on the next frame when set;
	// otherwise they fire synchronously inside the setter.
	Notify frame.Scheduler
}

// State is a snapshot of a Chart.
type State struct {
	Range       viewsync.ViewRange          `json:"range"`
	RightOffset int                         `json:"right_offset"`
	Crosshair   *viewsync.CrosshairPosition `json:"crosshair,omitempty"`
	Bars        int                         `json:"bars"`
	Width       float64                     `json:"width"`
	Series      viewsync.SeriesID           `json:"series,omitempty"`
}

// Chart implements viewport.Widget and viewport.BarSource.
type Chart struct {
	mu          sync.Mutex
	width       float64
	bars        []viewport.Bar
	rng         viewsync.ViewRange
	hasRange    bool
	rightOffset int
	crosshair   *viewsync.CrosshairPosition
	series      viewsync.SeriesID
	notify      frame.Scheduler
	detached    bool
	failWith    error

	nextSub   int
	rangeSubs map[int]func(viewsync.ViewRange)
	crossSubs map[int]func(*viewsync.CrosshairPosition)
}

// New creates a Chart.
func New(opts Options) *Chart {
	c := &Chart{
		width:       opts.Width,
		bars:        opts.Bars,
		rightOffset: opts.RightOffset,
		series:      opts.Series,
		notify:      opts.Notify,
		rangeSubs:   make(map[int]func(viewsync.ViewRange)),
		crossSubs:   make(map[int]func(*viewsync.CrosshairPosition)),
	}
	if c.width <= 0 {
		c.width = 800
	}
	switch {
	case opts.Range != nil:
		c.rng, c.hasRange = *opts.Range, true
	case len(opts.Bars) > 0:
		to := float64(len(opts.Bars) - 1)
		c.rng, c.hasRange = viewsync.ViewRange{From: math.Max(0, to-99), To: to}, true
	}
	return c
}

// CoordinateToLogical implements viewport.Widget.
func (c *Chart) CoordinateToLogical(x float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRange || x < 0 || x > c.width {
		return 0, false
	}
	return c.rng.From + x/c.width*c.rng.Bars(), true
}

// LogicalToCoordinate is the inverse of CoordinateToLogical.
func (c *Chart) LogicalToCoordinate(logical float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRange || c.rng.Bars() <= 0 {
		return 0, false
	}
	return (logical - c.rng.From) / c.rng.Bars() * c.width, true
}

// VisibleLogicalRange implements viewport.Widget.
func (c *Chart) VisibleLogicalRange() (viewsync.ViewRange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng, c.hasRange
}

// SetVisibleLogicalRange implements viewport.Widget. Listeners fire only
// when the range actually changes.
func (c *Chart) SetVisibleLogicalRange(r viewsync.ViewRange) error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	changed := !c.hasRange || c.rng != r
	c.rng, c.hasRange = r, true
	c.mu.Unlock()
	if changed {
		c.fireRange(r)
	}
	return nil
}

// RightOffset implements viewport.Widget.
func (c *Chart) RightOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rightOffset
}

// SetRightOffset implements viewport.Widget.
func (c *Chart) SetRightOffset(bars int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(); err != nil {
		return err
	}
	c.rightOffset = bars
	return nil
}

// SetCrosshairPosition implements viewport.Widget. Like the real widget it
// notifies crosshair listeners.
func (c *Chart) SetCrosshairPosition(value float64, t time.Time, series viewsync.SeriesID) error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if series == "" {
		series = c.series
	}
	pos := &viewsync.CrosshairPosition{Time: &t, Value: value, SeriesRef: series}
	c.crosshair = pos
	c.mu.Unlock()
	c.fireCrosshair(pos)
	return nil
}

// ClearCrosshairPosition implements viewport.Widget.
func (c *Chart) ClearCrosshairPosition() error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	had := c.crosshair != nil
	c.crosshair = nil
	c.mu.Unlock()
	if had {
		c.fireCrosshair(nil)
	}
	return nil
}

// SubscribeVisibleRangeChange implements viewport.Widget.
func (c *Chart) SubscribeVisibleRangeChange(fn func(viewsync.ViewRange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.rangeSubs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.rangeSubs, id)
		c.mu.Unlock()
	}
}

// SubscribeCrosshairMove implements viewport.Widget.
func (c *Chart) SubscribeCrosshairMove(fn func(*viewsync.CrosshairPosition)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.crossSubs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.crossSubs, id)
		c.mu.Unlock()
	}
}

// BarAt implements viewport.BarSource.
func (c *Chart) BarAt(logical float64) (viewport.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := int(math.Round(logical))
	if i < 0 || i >= len(c.bars) {
		return viewport.Bar{}, false
	}
	return c.bars[i], true
}

// Drag simulates the user dragging the plot by bars, the way the native
// widget pans on its own. The adapter sees only the change notification.
func (c *Chart) Drag(bars float64) {
	c.mu.Lock()
	if !c.hasRange || c.detached {
		c.mu.Unlock()
		return
	}
	c.rng = viewsync.ViewRange{From: c.rng.From + bars, To: c.rng.To + bars}
	r := c.rng
	c.mu.Unlock()
	c.fireRange(r)
}

// PointerMove simulates the pointer hovering pixel (x, price). Positions
// outside the plot or the data fire a cleared crosshair.
func (c *Chart) PointerMove(x, price float64) {
	logical, ok := c.CoordinateToLogical(x)
	var pos *viewsync.CrosshairPosition
	if ok {
		if bar, ok := c.BarAt(logical); ok {
			t := bar.Time
			pos = &viewsync.CrosshairPosition{Time: &t, Value: price, SeriesRef: c.series}
		}
	}
	c.mu.Lock()
	c.crosshair = pos
	c.mu.Unlock()
	c.fireCrosshair(pos)
}

// PointerLeave simulates the pointer leaving the chart.
func (c *Chart) PointerLeave() {
	c.mu.Lock()
	c.crosshair = nil
	c.mu.Unlock()
	c.fireCrosshair(nil)
}

// FailWith makes every setter return err until called again with nil.
func (c *Chart) FailWith(err error) {
	c.mu.Lock()
	c.failWith = err
	c.mu.Unlock()
}

// Detach makes the chart behave like a widget whose container was removed.
func (c *Chart) Detach() {
	c.mu.Lock()
	c.detached = true
	c.mu.Unlock()
}

// State returns a snapshot of the chart.
func (c *Chart) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cross *viewsync.CrosshairPosition
	if c.crosshair != nil {
		cp := *c.crosshair
		cross = &cp
	}
	return State{
		Range:       c.rng,
		RightOffset: c.rightOffset,
		Crosshair:   cross,
		Bars:        len(c.bars),
		Width:       c.width,
		Series:      c.series,
	}
}

func (c *Chart) checkLocked() error {
	if c.detached {
		return ErrDetached
	}
	return c.failWith
}

func (c *Chart) fireRange(r viewsync.ViewRange) {
	c.mu.Lock()
	subs := make([]func(viewsync.ViewRange), 0, len(c.rangeSubs))
	for _, fn := range c.rangeSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	c.dispatch(func() {
		for _, fn := range subs {
			fn(r)
		}
	})
}

func (c *Chart) fireCrosshair(pos *viewsync.CrosshairPosition) {
	c.mu.Lock()
	subs := make([]func(*viewsync.CrosshairPosition), 0, len(c.crossSubs))
	for _, fn := range c.crossSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	c.dispatch(func() {
		for _, fn := range subs {
			var p *viewsync.CrosshairPosition
			if pos != nil {
				cp := *pos
				p = &cp
			}
			fn(p)
		}
	})
}

func (c *Chart) dispatch(fn func()) {
	if c.notify != nil {
		c.notify.Defer(fn)
		return
	}
	fn()
}
