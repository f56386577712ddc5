package cdpcontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// SyncBinding is the page binding chart tabs report native changes through.
const SyncBinding = "viewsyncEmit"

// echoTolerance is how close a reported range must be to the last applied
// one to count as its echo.
const echoTolerance = 1e-6

// chartDriver is the part of Client a ChartWidget needs.
type chartDriver interface {
	GetVisibleRange(ctx context.Context, chartID string) (viewsync.ViewRange, bool, error)
	SetVisibleRange(ctx context.Context, chartID string, r viewsync.ViewRange) error
	GetRightOffset(ctx context.Context, chartID string) (int, error)
	SetRightOffset(ctx context.Context, chartID string, bars int) error
	CoordinateToLogical(ctx context.Context, chartID string, x float64) (LogicalPoint, error)
	SetCrosshair(ctx context.Context, chartID string, value float64, t time.Time, series string) error
	ClearCrosshair(ctx context.Context, chartID string) error
	BarAt(ctx context.Context, chartID string, logical float64) (BarData, bool, error)
	Bind(ctx context.Context, chartID, name string, fn func(payload string)) (func(), error)
	InstallSync(ctx context.Context, chartID, binding string) error
	OnReconnect(fn func()) func()
}

// ChartWidget adapts one remote chart tab to viewport.Widget. Browser
// notifications arrive asynchronously, often after the adapter's echo guard
// has been released, so the widget also drops notifications that merely
// report the value it last applied.
type ChartWidget struct {
	driver  chartDriver
	chartID string
	ctx     context.Context
	cancel  context.CancelFunc

	events  chan string
	rebind  chan struct{}
	unwatch func()

	bindMu sync.Mutex

	mu          sync.Mutex
	bound       bool
	unbind      func()
	nextID      int
	rangeSubs   map[int]func(viewsync.ViewRange)
	crossSubs   map[int]func(*viewsync.CrosshairPosition)
	lastSet     *viewsync.ViewRange
	lastCross   *viewsync.CrosshairPosition
	clearedSet  bool
	rightOffset int
}

// NewChartWidget wraps the chart tab chartID. Close releases the binding.
func NewChartWidget(ctx context.Context, client *Client, chartID string) *ChartWidget {
	return newChartWidget(ctx, client, chartID)
}

func newChartWidget(ctx context.Context, d chartDriver, chartID string) *ChartWidget {
	wctx, cancel := context.WithCancel(ctx)
	w := &ChartWidget{
		driver:    d,
		chartID:   chartID,
		ctx:       wctx,
		cancel:    cancel,
		events:    make(chan string, 256),
		rebind:    make(chan struct{}, 1),
		rangeSubs: make(map[int]func(viewsync.ViewRange)),
		crossSubs: make(map[int]func(*viewsync.CrosshairPosition)),
	}
	w.unwatch = d.OnReconnect(w.reconnected)
	go w.loop()
	return w
}

// ChartID returns the wrapped chart id.
func (w *ChartWidget) ChartID() string { return w.chartID }

// Close stops event delivery and removes the binding handler.
func (w *ChartWidget) Close() {
	w.mu.Lock()
	unbind := w.unbind
	w.unbind = nil
	w.bound = false
	w.mu.Unlock()
	if unbind != nil {
		unbind()
	}
	w.unwatch()
	w.cancel()
}

// CoordinateToLogical implements viewport.Widget.
func (w *ChartWidget) CoordinateToLogical(x float64) (float64, bool) {
	p, err := w.driver.CoordinateToLogical(w.ctx, w.chartID, x)
	if err != nil {
		slog.Warn("cdpcontrol coordinate conversion failed", "chart_id", w.chartID, "error", err)
		return 0, false
	}
	return p.Logical, p.OK
}

// VisibleLogicalRange implements viewport.Widget.
func (w *ChartWidget) VisibleLogicalRange() (viewsync.ViewRange, bool) {
	r, ok, err := w.driver.GetVisibleRange(w.ctx, w.chartID)
	if err != nil {
		slog.Warn("cdpcontrol get visible range failed", "chart_id", w.chartID, "error", err)
		return viewsync.ViewRange{}, false
	}
	return r, ok
}

// SetVisibleLogicalRange implements viewport.Widget.
func (w *ChartWidget) SetVisibleLogicalRange(r viewsync.ViewRange) error {
	w.mu.Lock()
	w.lastSet = &r
	w.mu.Unlock()
	return w.driver.SetVisibleRange(w.ctx, w.chartID, r)
}

// RightOffset implements viewport.Widget. On failure it reports the last
// offset it knew of.
func (w *ChartWidget) RightOffset() int {
	off, err := w.driver.GetRightOffset(w.ctx, w.chartID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		slog.Warn("cdpcontrol get right offset failed", "chart_id", w.chartID, "error", err)
		return w.rightOffset
	}
	w.rightOffset = off
	return off
}

// SetRightOffset implements viewport.Widget.
func (w *ChartWidget) SetRightOffset(bars int) error {
	if err := w.driver.SetRightOffset(w.ctx, w.chartID, bars); err != nil {
		return err
	}
	w.mu.Lock()
	w.rightOffset = bars
	w.mu.Unlock()
	return nil
}

// SetCrosshairPosition implements viewport.Widget.
func (w *ChartWidget) SetCrosshairPosition(value float64, t time.Time, series viewsync.SeriesID) error {
	w.mu.Lock()
	w.lastCross = &viewsync.CrosshairPosition{Time: &t, Value: value, SeriesRef: series}
	w.clearedSet = false
	w.mu.Unlock()
	return w.driver.SetCrosshair(w.ctx, w.chartID, value, t, string(series))
}

// ClearCrosshairPosition implements viewport.Widget.
func (w *ChartWidget) ClearCrosshairPosition() error {
	w.mu.Lock()
	w.lastCross = nil
	w.clearedSet = true
	w.mu.Unlock()
	return w.driver.ClearCrosshair(w.ctx, w.chartID)
}

// BarAt implements viewport.BarSource.
func (w *ChartWidget) BarAt(logical float64) (viewport.Bar, bool) {
	b, ok, err := w.driver.BarAt(w.ctx, w.chartID, logical)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("cdpcontrol bar lookup failed", "chart_id", w.chartID, "error", err)
		}
		return viewport.Bar{}, false
	}
	return viewport.Bar{
		Time:  time.Unix(b.Time, 0).UTC(),
		Open:  b.Open,
		High:  b.High,
		Low:   b.Low,
		Close: b.Close,
	}, true
}

// SubscribeVisibleRangeChange implements viewport.Widget.
func (w *ChartWidget) SubscribeVisibleRangeChange(fn func(viewsync.ViewRange)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.rangeSubs[id] = fn
	w.mu.Unlock()
	w.ensureBound()
	return func() {
		w.mu.Lock()
		delete(w.rangeSubs, id)
		w.mu.Unlock()
	}
}

// SubscribeCrosshairMove implements viewport.Widget.
func (w *ChartWidget) SubscribeCrosshairMove(fn func(*viewsync.CrosshairPosition)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.crossSubs[id] = fn
	w.mu.Unlock()
	w.ensureBound()
	return func() {
		w.mu.Lock()
		delete(w.crossSubs, id)
		w.mu.Unlock()
	}
}

// ensureBound installs the page binding once per connection. Failures are
// logged and retried on the next subscription or reconnect.
func (w *ChartWidget) ensureBound() {
	w.bindMu.Lock()
	defer w.bindMu.Unlock()
	w.bindLocked()
}

func (w *ChartWidget) bindLocked() {
	w.mu.Lock()
	if w.bound {
		w.mu.Unlock()
		return
	}
	w.bound = true
	w.mu.Unlock()

	unbind, err := w.driver.Bind(w.ctx, w.chartID, SyncBinding, w.enqueue)
	if err == nil {
		err = w.driver.InstallSync(w.ctx, w.chartID, SyncBinding)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		slog.Warn("cdpcontrol sync binding failed", "chart_id", w.chartID, "error", err)
		w.bound = false
		if unbind != nil {
			unbind()
		}
		return
	}
	w.unbind = unbind
}

// enqueue runs on the CDP read loop; handlers run on the widget goroutine so
// they may issue CDP calls of their own.
func (w *ChartWidget) enqueue(payload string) {
	select {
	case w.events <- payload:
	case <-w.ctx.Done():
	default:
		slog.Warn("cdpcontrol native event dropped", "chart_id", w.chartID)
	}
}

// reconnected runs after the client opens a new connection, which carries
// none of the old binding handlers.
func (w *ChartWidget) reconnected() {
	select {
	case w.rebind <- struct{}{}:
	default:
	}
}

func (w *ChartWidget) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case payload := <-w.events:
			w.handle(payload)
		case <-w.rebind:
			w.rebindAfterReconnect()
		}
	}
}

func (w *ChartWidget) rebindAfterReconnect() {
	w.bindMu.Lock()
	defer w.bindMu.Unlock()
	w.mu.Lock()
	unbind := w.unbind
	w.unbind = nil
	w.bound = false
	subscribed := len(w.rangeSubs)+len(w.crossSubs) > 0
	w.mu.Unlock()
	if unbind != nil {
		unbind()
	}
	if !subscribed {
		return
	}
	slog.Info("cdpcontrol rebinding chart after reconnect", "chart_id", w.chartID)
	w.bindLocked()
}

func (w *ChartWidget) handle(payload string) {
	var ev nativeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Debug("cdpcontrol bad native event", "chart_id", w.chartID, "error", err)
		return
	}
	if ev.Chart != "" && ev.Chart != w.chartID {
		return
	}
	switch ev.Kind {
	case "range":
		r := viewsync.ViewRange{From: ev.From, To: ev.To}
		w.mu.Lock()
		echo := w.lastSet != nil && nearlyEqual(*w.lastSet, r)
		if echo {
			w.lastSet = nil
		}
		subs := make([]func(viewsync.ViewRange), 0, len(w.rangeSubs))
		for _, fn := range w.rangeSubs {
			subs = append(subs, fn)
		}
		w.mu.Unlock()
		if echo {
			return
		}
		for _, fn := range subs {
			fn(r)
		}
	case "crosshair":
		var pos *viewsync.CrosshairPosition
		if ev.Time != nil && ev.Value != nil {
			t := time.Unix(*ev.Time, 0).UTC()
			pos = &viewsync.CrosshairPosition{Time: &t, Value: *ev.Value, SeriesRef: viewsync.SeriesID(ev.Series)}
		}
		w.mu.Lock()
		echo := w.isCrossEchoLocked(pos)
		subs := make([]func(*viewsync.CrosshairPosition), 0, len(w.crossSubs))
		for _, fn := range w.crossSubs {
			subs = append(subs, fn)
		}
		w.mu.Unlock()
		if echo {
			return
		}
		for _, fn := range subs {
			fn(pos)
		}
	}
}

func (w *ChartWidget) isCrossEchoLocked(pos *viewsync.CrosshairPosition) bool {
	if pos == nil {
		if w.clearedSet {
			w.clearedSet = false
			return true
		}
		return false
	}
	last := w.lastCross
	if last == nil || last.Time == nil {
		return false
	}
	if last.Time.Unix() == pos.Time.Unix() && math.Abs(last.Value-pos.Value) < echoTolerance {
		w.lastCross = nil
		return true
	}
	return false
}

func nearlyEqual(a, b viewsync.ViewRange) bool {
	return math.Abs(a.From-b.From) < echoTolerance && math.Abs(a.To-b.To) < echoTolerance
}
