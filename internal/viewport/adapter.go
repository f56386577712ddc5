// Package viewport binds one native chart widget to the sync bus.
//
// An Adapter publishes the interactions that originate on its widget and
// applies the ones that originate elsewhere. Applying an inbound message
// makes most widgets fire their own change notification, which would be
// published again and bounce between viewports forever; the adapter holds
// an echo guard across every programmatic apply and releases it on the next
// frame, after any deferred native callback has fired.
package viewport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/zoom"
)

var (
	ErrNotMounted     = errors.New("viewport not mounted")
	ErrAlreadyMounted = errors.New("viewport already mounted")
	ErrNoVisibleRange = errors.New("viewport has no visible range")
	ErrInvalidRange   = errors.New("range must be finite with end greater than start")
)

// Outcome classifies what an adapter did with a message or interaction.
type Outcome string

const (
	OutcomePublished  Outcome = "published"
	OutcomeApplied    Outcome = "applied"
	OutcomeStale      Outcome = "stale"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// Options tunes an Adapter. Zero values select the defaults.
type Options struct {
	Resolution string
	// MinBars overrides zoom.MinBars(Resolution) when positive.
	MinBars float64
	ZoomIn  float64
	ZoomOut float64
	// SeriesRef is the local series crosshair positions are drawn against.
	SeriesRef viewsync.SeriesID
	// LeaderOnly publishes native range changes only while this viewport
	// holds the leader token.
	LeaderOnly bool
	// Coalesce collapses native range changes within one frame into a
	// single publish at the next frame.
	Coalesce bool
	// RequestReplayOnMount asks the other viewports to re-broadcast their
	// range when the cache was empty at mount time.
	RequestReplayOnMount bool
	// Magnet snaps hover values to the nearest OHLC value of the bar under
	// the cursor. Needs a widget that implements BarSource.
	Magnet bool

	Logger    *slog.Logger
	OnOutcome func(id viewsync.ViewportID, kind viewsync.Kind, o Outcome)
}

// RangeResult reports a locally originated range change.
type RangeResult struct {
	Range       viewsync.ViewRange `json:"range"`
	RightOffset int                `json:"right_offset"`
	Seq         uint64             `json:"seq"`
}

// Stats is a point-in-time view of an adapter.
type Stats struct {
	Mounted      bool   `json:"mounted"`
	Guarded      bool   `json:"guarded"`
	LastRangeSeq uint64 `json:"last_range_seq"`
	LastCrossSeq uint64 `json:"last_crosshair_seq"`
	Published    uint64 `json:"published"`
	Applied      uint64 `json:"applied"`
	Stale        uint64 `json:"stale"`
	Suppressed   uint64 `json:"suppressed"`
	Failed       uint64 `json:"failed"`
}

// Adapter is one mounted viewport. It implements viewsync.Registration.
type Adapter struct {
	id     viewsync.ViewportID
	bus    Bus
	widget Widget
	frames frame.Scheduler
	opts   Options
	log    *slog.Logger

	mounted    atomic.Bool
	guard      atomic.Int32
	lastRange  atomic.Uint64
	lastCross  atomic.Uint64
	published  atomic.Uint64
	applied    atomic.Uint64
	stale      atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64

	mu          sync.Mutex
	unregister  func()
	unsubs      []func()
	pending     *viewsync.ViewRange
	flushQueued bool
}

// New creates an unmounted Adapter.
func New(id viewsync.ViewportID, bus Bus, w Widget, frames frame.Scheduler, opts Options) *Adapter {
	if opts.ZoomIn <= 0 {
		opts.ZoomIn = zoom.StepIn
	}
	if opts.ZoomOut <= 0 {
		opts.ZoomOut = zoom.StepOut
	}
	if opts.MinBars <= 0 {
		opts.MinBars = zoom.MinBars(opts.Resolution)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		id:     id,
		bus:    bus,
		widget: w,
		frames: frames,
		opts:   opts,
		log:    log.With("viewport_id", string(id)),
	}
}

// ID implements viewsync.Registration.
func (a *Adapter) ID() viewsync.ViewportID { return a.id }

// Widget returns the wrapped native widget.
func (a *Adapter) Widget() Widget { return a.widget }

// Mount registers with the bus and catches up from the late-join cache
// without publishing anything.
func (a *Adapter) Mount() error {
	if !a.mounted.CompareAndSwap(false, true) {
		return ErrAlreadyMounted
	}

	unsubRange := a.widget.SubscribeVisibleRangeChange(a.onNativeRange)
	unsubCross := a.widget.SubscribeCrosshairMove(a.onNativeCrosshair)
	unregister := a.bus.Register(a)

	a.mu.Lock()
	a.unregister = unregister
	a.unsubs = []func(){unsubRange, unsubCross}
	a.mu.Unlock()

	caughtUp := false
	if st, ok := a.bus.LastRange(); ok {
		caughtUp = true
		if raise(&a.lastRange, st.Seq) {
			if err := a.applyRangeLocal(st.Range, st.RightOffset); err != nil {
				a.log.Warn("viewport catch-up range failed", "seq", st.Seq, "error", err)
			}
		}
	}
	if st, ok := a.bus.LastCrosshair(); ok && raise(&a.lastCross, st.Seq) {
		if err := a.applyCrosshairLocal(st.Position); err != nil {
			a.log.Warn("viewport catch-up crosshair failed", "seq", st.Seq, "error", err)
		}
	}
	if !caughtUp && a.opts.RequestReplayOnMount {
		a.bus.RequestReplay(a.id)
	}

	a.log.Info("viewport mounted", "caught_up", caughtUp)
	return nil
}

// Unmount unregisters from the bus and drops leadership. Calling it twice is
// harmless.
func (a *Adapter) Unmount() {
	if !a.mounted.CompareAndSwap(true, false) {
		return
	}
	a.mu.Lock()
	unregister := a.unregister
	unsubs := a.unsubs
	a.unregister, a.unsubs = nil, nil
	a.pending = nil
	a.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	for _, fn := range unsubs {
		if fn != nil {
			fn()
		}
	}
	a.bus.UnmarkLeader(a.id)
	a.log.Info("viewport unmounted")
}

// CurrentRange implements viewsync.RangeReporter.
func (a *Adapter) CurrentRange() (viewsync.ViewRange, int, bool) {
	if !a.mounted.Load() {
		return viewsync.ViewRange{}, 0, false
	}
	r, ok := a.widget.VisibleLogicalRange()
	if !ok {
		return viewsync.ViewRange{}, 0, false
	}
	return r, a.widget.RightOffset(), true
}

// Mounted reports whether the adapter is registered.
func (a *Adapter) Mounted() bool { return a.mounted.Load() }

// Guarded reports whether an echo guard is currently held.
func (a *Adapter) Guarded() bool { return a.guard.Load() > 0 }

// Stats returns the adapter counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Mounted:      a.mounted.Load(),
		Guarded:      a.Guarded(),
		LastRangeSeq: a.lastRange.Load(),
		LastCrossSeq: a.lastCross.Load(),
		Published:    a.published.Load(),
		Applied:      a.applied.Load(),
		Stale:        a.stale.Load(),
		Suppressed:   a.suppressed.Load(),
		Failed:       a.failed.Load(),
	}
}

// ApplyRange implements viewsync.Registration. Messages at or below the
// last applied range sequence are discarded.
func (a *Adapter) ApplyRange(r viewsync.ViewRange, rightOffset int, seq uint64) error {
	if !a.mounted.Load() {
		return nil
	}
	if !r.Valid() {
		a.record(viewsync.RangeChanged, OutcomeFailed)
		return fmt.Errorf("viewport %s: apply %s: %w", a.id, r, ErrInvalidRange)
	}
	if !raise(&a.lastRange, seq) {
		a.record(viewsync.RangeChanged, OutcomeStale)
		a.log.Debug("viewport stale range dropped", "seq", seq, "last", a.lastRange.Load())
		return nil
	}
	if err := a.applyRangeLocal(r, rightOffset); err != nil {
		a.record(viewsync.RangeChanged, OutcomeFailed)
		return fmt.Errorf("viewport %s: apply range: %w", a.id, err)
	}
	a.record(viewsync.RangeChanged, OutcomeApplied)
	return nil
}

// ApplyCrosshair implements viewsync.Registration. A nil position clears the
// local crosshair.
func (a *Adapter) ApplyCrosshair(pos *viewsync.CrosshairPosition, seq uint64) error {
	if !a.mounted.Load() {
		return nil
	}
	if !raise(&a.lastCross, seq) {
		a.record(viewsync.CrosshairMoved, OutcomeStale)
		return nil
	}
	if err := a.applyCrosshairLocal(pos); err != nil {
		a.record(viewsync.CrosshairMoved, OutcomeFailed)
		return fmt.Errorf("viewport %s: apply crosshair: %w", a.id, err)
	}
	a.record(viewsync.CrosshairMoved, OutcomeApplied)
	return nil
}

// Pan shifts the visible range by bars and publishes it.
func (a *Adapter) Pan(bars float64) (RangeResult, error) {
	return a.transformRange(func(r viewsync.ViewRange, _ int) viewsync.ViewRange {
		return zoom.Pan(r, bars)
	})
}

// Zoom performs one fixed step anchored at pixel x. A pixel outside the plot
// area anchors at the middle of the visible range.
func (a *Adapter) Zoom(x float64, dir zoom.Direction) (RangeResult, error) {
	factor := a.opts.ZoomOut
	if dir == zoom.In {
		factor = a.opts.ZoomIn
	}
	return a.zoomAt(x, factor)
}

// Wheel handles a wheel event at pixel x. Horizontal-dominant events are
// ignored (the widget pans natively); vertical ones zoom with a factor
// proportional to the delta. Wheeling also takes the leader token.
func (a *Adapter) Wheel(x, deltaX, deltaY float64, deltaMode int) (RangeResult, bool, error) {
	if zoom.IsHorizontalScroll(deltaX, deltaY) {
		return RangeResult{}, false, nil
	}
	if a.mounted.Load() {
		a.bus.MarkLeader(a.id)
	}
	res, err := a.zoomAt(x, zoom.WheelFactor(deltaY, deltaMode))
	return res, err == nil, err
}

// ScrollTo shows exactly r (widened to the minimum bar count if needed).
func (a *Adapter) ScrollTo(r viewsync.ViewRange) (RangeResult, error) {
	if !r.Valid() {
		return RangeResult{}, ErrInvalidRange
	}
	return a.transformRange(func(viewsync.ViewRange, int) viewsync.ViewRange { return r })
}

// Hover moves the crosshair to the bar under pixel x at the given price and
// publishes it. Off-chart pixels, and widgets that cannot resolve bars,
// clear the crosshair instead.
func (a *Adapter) Hover(x, price float64) (*viewsync.CrosshairPosition, uint64, error) {
	if !a.mounted.Load() {
		return nil, 0, ErrNotMounted
	}
	var pos *viewsync.CrosshairPosition
	if logical, ok := a.widget.CoordinateToLogical(x); ok {
		if src, ok := a.widget.(BarSource); ok {
			if bar, ok := src.BarAt(logical); ok {
				value := price
				if a.opts.Magnet {
					value = bar.Snap(price)
				}
				t := bar.Time
				pos = &viewsync.CrosshairPosition{Time: &t, Value: value, SeriesRef: a.opts.SeriesRef}
			}
		}
	}
	seq, err := a.publishCrosshairLocal(pos)
	return pos, seq, err
}

// SetCrosshair applies and publishes an explicit crosshair position.
func (a *Adapter) SetCrosshair(t time.Time, value float64) (*viewsync.CrosshairPosition, uint64, error) {
	pos := &viewsync.CrosshairPosition{Time: &t, Value: value, SeriesRef: a.opts.SeriesRef}
	seq, err := a.publishCrosshairLocal(pos)
	return pos, seq, err
}

// Leave clears the crosshair locally and on every follower.
func (a *Adapter) Leave() (uint64, error) {
	return a.publishCrosshairLocal(nil)
}

// BeginInteraction takes the leader token (pointer down, touch start).
func (a *Adapter) BeginInteraction() error {
	if !a.mounted.Load() {
		return ErrNotMounted
	}
	a.bus.MarkLeader(a.id)
	return nil
}

// EndInteraction releases the leader token if this viewport still holds it.
func (a *Adapter) EndInteraction() bool {
	return a.bus.UnmarkLeader(a.id)
}

// IsLeader reports whether this viewport holds the leader token.
func (a *Adapter) IsLeader() bool { return a.bus.IsLeader(a.id) }

func (a *Adapter) zoomAt(x, factor float64) (RangeResult, error) {
	return a.transformRange(func(r viewsync.ViewRange, rightOffset int) viewsync.ViewRange {
		var cursor *float64
		if logical, ok := a.widget.CoordinateToLogical(x); ok {
			cursor = &logical
		}
		return zoom.Anchored(zoom.Input{
			Range:       r,
			Cursor:      cursor,
			Factor:      factor,
			MinBars:     a.opts.MinBars,
			RightOffset: rightOffset,
		}).Range
	})
}

func (a *Adapter) transformRange(fn func(viewsync.ViewRange, int) viewsync.ViewRange) (RangeResult, error) {
	if !a.mounted.Load() {
		return RangeResult{}, ErrNotMounted
	}
	cur, ok := a.widget.VisibleLogicalRange()
	if !ok {
		return RangeResult{}, ErrNoVisibleRange
	}
	rightOffset := a.widget.RightOffset()
	next, _ := zoom.ClampMinBars(fn(cur, rightOffset), a.opts.MinBars)
	if !next.Valid() {
		a.record(viewsync.RangeChanged, OutcomeFailed)
		return RangeResult{}, fmt.Errorf("viewport %s: %s: %w", a.id, next, ErrInvalidRange)
	}

	if err := a.applyRangeLocal(next, rightOffset); err != nil {
		a.record(viewsync.RangeChanged, OutcomeFailed)
		return RangeResult{}, fmt.Errorf("viewport %s: set range: %w", a.id, err)
	}
	seq := a.publishRange(next, rightOffset)
	return RangeResult{Range: next, RightOffset: rightOffset, Seq: seq}, nil
}

func (a *Adapter) publishRange(r viewsync.ViewRange, rightOffset int) uint64 {
	seq := a.bus.PublishRange(a.id, r, rightOffset)
	// Our own publish is the newest state we have shown; anything older
	// still in flight must not roll it back.
	raise(&a.lastRange, seq)
	a.published.Add(1)
	a.record(viewsync.RangeChanged, OutcomePublished)
	a.log.Debug("viewport published range", "seq", seq, "range", r.String(), "right_offset", rightOffset)
	return seq
}

func (a *Adapter) publishCrosshairLocal(pos *viewsync.CrosshairPosition) (uint64, error) {
	if !a.mounted.Load() {
		return 0, ErrNotMounted
	}
	if err := a.applyCrosshairLocal(pos); err != nil {
		a.record(viewsync.CrosshairMoved, OutcomeFailed)
		return 0, fmt.Errorf("viewport %s: set crosshair: %w", a.id, err)
	}
	return a.publishCrosshair(pos), nil
}

func (a *Adapter) publishCrosshair(pos *viewsync.CrosshairPosition) uint64 {
	seq := a.bus.PublishCrosshair(a.id, pos)
	raise(&a.lastCross, seq)
	a.published.Add(1)
	a.record(viewsync.CrosshairMoved, OutcomePublished)
	return seq
}

func (a *Adapter) applyRangeLocal(r viewsync.ViewRange, rightOffset int) error {
	return a.guarded(func() error {
		if rightOffset >= 0 {
			if err := a.widget.SetRightOffset(rightOffset); err != nil {
				return err
			}
		}
		return a.widget.SetVisibleLogicalRange(r)
	})
}

func (a *Adapter) applyCrosshairLocal(pos *viewsync.CrosshairPosition) error {
	return a.guarded(func() error {
		if pos.Cleared() {
			return a.widget.ClearCrosshairPosition()
		}
		series := a.opts.SeriesRef
		if series == "" {
			series = pos.SeriesRef
		}
		return a.widget.SetCrosshairPosition(pos.Value, *pos.Time, series)
	})
}

// guarded holds the echo guard across fn and keeps it until the next frame
// so native callbacks fired later in the same frame are still recognised as
// echoes.
func (a *Adapter) guarded(fn func() error) error {
	a.guard.Add(1)
	defer a.frames.Defer(a.release)
	return fn()
}

func (a *Adapter) release() { a.guard.Add(-1) }

func (a *Adapter) onNativeRange(r viewsync.ViewRange) {
	if a.guard.Load() > 0 {
		a.record(viewsync.RangeChanged, OutcomeSuppressed)
		return
	}
	if !a.mounted.Load() {
		return
	}
	if a.opts.LeaderOnly && !a.bus.IsLeader(a.id) {
		return
	}
	if clamped, changed := zoom.ClampMinBars(r, a.opts.MinBars); changed {
		r = clamped
		if err := a.guarded(func() error { return a.widget.SetVisibleLogicalRange(r) }); err != nil {
			a.log.Warn("viewport min-bars clamp failed", "range", r.String(), "error", err)
		}
	}
	if !a.opts.Coalesce {
		a.publishRange(r, a.widget.RightOffset())
		return
	}

	a.mu.Lock()
	a.pending = &r
	queue := !a.flushQueued
	a.flushQueued = true
	a.mu.Unlock()
	if queue {
		a.frames.Defer(a.flushPending)
	}
}

func (a *Adapter) flushPending() {
	a.mu.Lock()
	r := a.pending
	a.pending = nil
	a.flushQueued = false
	a.mu.Unlock()
	if r == nil || !a.mounted.Load() {
		return
	}
	a.publishRange(*r, a.widget.RightOffset())
}

func (a *Adapter) onNativeCrosshair(pos *viewsync.CrosshairPosition) {
	if a.guard.Load() > 0 {
		a.record(viewsync.CrosshairMoved, OutcomeSuppressed)
		return
	}
	if !a.mounted.Load() {
		return
	}
	if pos != nil && pos.SeriesRef == "" {
		cp := *pos
		cp.SeriesRef = a.opts.SeriesRef
		pos = &cp
	}
	a.publishCrosshair(pos)
}

func (a *Adapter) record(kind viewsync.Kind, o Outcome) {
	switch o {
	case OutcomeApplied:
		a.applied.Add(1)
	case OutcomeStale:
		a.stale.Add(1)
	case OutcomeSuppressed:
		a.suppressed.Add(1)
	case OutcomeFailed:
		a.failed.Add(1)
	}
	if a.opts.OnOutcome != nil {
		a.opts.OnOutcome(a.id, kind, o)
	}
}

// raise moves *floor up to seq and reports whether it did. A seq at or
// below the floor is stale or a duplicate.
func raise(floor *atomic.Uint64, seq uint64) bool {
	for {
		cur := floor.Load()
		if seq <= cur {
			return false
		}
		if floor.CompareAndSwap(cur, seq) {
			return true
		}
	}
}
