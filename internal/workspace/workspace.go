// Package workspace composes one sync bus with the viewports mounted on it
// and exposes the operations the HTTP API drives.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/chartsim"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/zoom"
)

// Widget kinds accepted by Mount.
const (
	KindSim = "sim"
	KindCDP = "cdp"
)

// simEpoch is where generated bars start, so sim viewports at the same
// resolution share bar times.
var simEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Defaults fill in MountSpec fields left at zero.
type Defaults struct {
	Resolution  string
	MinBars     float64
	ZoomIn      float64
	ZoomOut     float64
	RightOffset int
	Width       float64
	Bars        int
}

// Config wires a Workspace.
type Config struct {
	Frames     frame.Scheduler
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Defaults   Defaults
	// CDP backs "cdp" viewports. Nil disables them.
	CDP *cdpcontrol.Client
}

// MountSpec describes one viewport to mount.
type MountSpec struct {
	ID          string              `json:"id,omitempty" yaml:"id" doc:"Viewport id (generated when empty)"`
	Kind        string              `json:"kind,omitempty" yaml:"kind" enum:"sim,cdp" doc:"Widget kind (default sim)"`
	ChartID     string              `json:"chart_id,omitempty" yaml:"chart_id" doc:"Chart tab id for cdp viewports"`
	Resolution  string              `json:"resolution,omitempty" yaml:"resolution" doc:"Bar resolution, e.g. 1, 15, 60, 1D"`
	Bars        int                 `json:"bars,omitempty" yaml:"bars" doc:"Generated bar count for sim viewports"`
	Seed        uint64              `json:"seed,omitempty" yaml:"seed" doc:"Random walk seed for sim viewports"`
	Width       float64             `json:"width,omitempty" yaml:"width" doc:"Plot width in pixels for sim viewports"`
	Range       *viewsync.ViewRange `json:"range,omitempty" yaml:"range" doc:"Initial visible range for sim viewports"`
	RightOffset int                 `json:"right_offset,omitempty" yaml:"right_offset"`
	SeriesRef   string              `json:"series_ref,omitempty" yaml:"series_ref"`
	// DeferNotifications makes a sim chart report changes on the next
	// frame, like a browser chart does.
	DeferNotifications   bool    `json:"defer_notifications,omitempty" yaml:"defer_notifications"`
	LeaderOnly           bool    `json:"leader_only,omitempty" yaml:"leader_only"`
	Coalesce             bool    `json:"coalesce,omitempty" yaml:"coalesce"`
	Magnet               bool    `json:"magnet,omitempty" yaml:"magnet"`
	RequestReplayOnMount bool    `json:"request_replay_on_mount,omitempty" yaml:"request_replay_on_mount"`
	MinBars              float64 `json:"min_bars,omitempty" yaml:"min_bars"`
}

// ViewportInfo describes a mounted viewport.
type ViewportInfo struct {
	ID          viewsync.ViewportID `json:"id"`
	Kind        string              `json:"kind"`
	ChartID     string              `json:"chart_id,omitempty"`
	Resolution  string              `json:"resolution"`
	Range       *viewsync.ViewRange `json:"range,omitempty"`
	RightOffset int                 `json:"right_offset"`
	Leader      bool                `json:"leader"`
	MountedAt   time.Time           `json:"mounted_at"`
	Stats       viewport.Stats      `json:"stats"`
}

// SyncState is the bus-level view of a workspace.
type SyncState struct {
	LastSeq   uint64                   `json:"last_seq"`
	Range     *viewsync.RangeState     `json:"range,omitempty"`
	Crosshair *viewsync.CrosshairState `json:"crosshair,omitempty"`
	Leader    viewsync.ViewportID      `json:"leader,omitempty"`
	Viewports []viewsync.ViewportID    `json:"viewports"`
}

type entry struct {
	spec      MountSpec
	adapter   *viewport.Adapter
	widget    viewport.Widget
	mountedAt time.Time
}

// Workspace owns a Bus and the adapters registered on it.
type Workspace struct {
	bus      *viewsync.Bus
	frames   frame.Scheduler
	cdp      *cdpcontrol.Client
	defaults Defaults
	metrics  *Metrics
	log      *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	unobserve func()

	mu        sync.Mutex
	viewports map[viewsync.ViewportID]*entry
	closed    bool
}

// New creates an empty Workspace.
func New(cfg Config) *Workspace {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	d := cfg.Defaults
	if d.Resolution == "" {
		d.Resolution = "1"
	}
	if d.Bars <= 0 {
		d.Bars = 500
	}
	m := NewMetrics(cfg.Registerer)
	ctx, cancel := context.WithCancel(context.Background())

	frames := cfg.Frames
	if frames == nil {
		t := frame.NewTicker(frame.DefaultInterval)
		t.Start(ctx)
		frames = t
	}

	w := &Workspace{
		frames:    frames,
		cdp:       cfg.CDP,
		defaults:  d,
		metrics:   m,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		viewports: make(map[viewsync.ViewportID]*entry),
	}
	w.bus = viewsync.NewBus(viewsync.Options{
		Logger: log,
		OnFault: func(id viewsync.ViewportID, kind viewsync.Kind, err error) {
			m.Faults.WithLabelValues(kind.String()).Inc()
			log.Warn("workspace subscriber fault", "viewport_id", id, "kind", kind.String(), "error", err)
		},
	})
	w.unobserve = w.bus.Observe(func(msg viewsync.Message) {
		m.Messages.WithLabelValues(msg.Kind.String()).Inc()
		m.LastSeq.Set(float64(msg.Seq))
	})
	return w
}

// Bus returns the workspace bus.
func (w *Workspace) Bus() *viewsync.Bus { return w.bus }

// Metrics returns the workspace collectors.
func (w *Workspace) Metrics() *Metrics { return w.metrics }

// Mount creates the widget described by spec, wraps it in an adapter and
// registers it. The new viewport catches up from the bus cache.
func (w *Workspace) Mount(ctx context.Context, spec MountSpec) (ViewportInfo, error) {
	spec.ID = strings.TrimSpace(spec.ID)
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	spec.Kind = strings.ToLower(strings.TrimSpace(spec.Kind))
	if spec.Kind == "" {
		spec.Kind = KindSim
	}
	if spec.Resolution == "" {
		spec.Resolution = w.defaults.Resolution
	}
	if spec.Range != nil && !spec.Range.Valid() {
		return ViewportInfo{}, validation("range end must be greater than start")
	}
	id := viewsync.ViewportID(spec.ID)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ViewportInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeWidgetUnavailable, Message: "workspace closed"}
	}
	if _, exists := w.viewports[id]; exists {
		w.mu.Unlock()
		return ViewportInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeViewportExists, Message: fmt.Sprintf("viewport %q already mounted", id)}
	}
	// Reserve the id so a concurrent Mount cannot race us.
	w.viewports[id] = nil
	w.mu.Unlock()

	widget, err := w.newWidget(ctx, spec)
	if err != nil {
		w.release(id, nil)
		return ViewportInfo{}, err
	}

	adapter := viewport.New(id, w.bus, widget, w.frames, viewport.Options{
		Resolution:           spec.Resolution,
		MinBars:              firstPositive(spec.MinBars, w.defaults.MinBars),
		ZoomIn:               w.defaults.ZoomIn,
		ZoomOut:              w.defaults.ZoomOut,
		SeriesRef:            viewsync.SeriesID(spec.SeriesRef),
		LeaderOnly:           spec.LeaderOnly,
		Coalesce:             spec.Coalesce,
		RequestReplayOnMount: spec.RequestReplayOnMount,
		Magnet:               spec.Magnet,
		Logger:               w.log,
		OnOutcome: func(_ viewsync.ViewportID, kind viewsync.Kind, o viewport.Outcome) {
			w.metrics.Outcomes.WithLabelValues(kind.String(), string(o)).Inc()
		},
	})
	e := &entry{spec: spec, adapter: adapter, widget: widget, mountedAt: time.Now().UTC()}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		closeWidget(widget)
		return ViewportInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeWidgetUnavailable, Message: "workspace closed"}
	}
	w.viewports[id] = e
	n := len(w.viewports)
	w.mu.Unlock()

	if err := adapter.Mount(); err != nil {
		w.release(id, e)
		closeWidget(widget)
		return ViewportInfo{}, codedViewportErr(id, err)
	}
	w.metrics.Viewports.Set(float64(n))
	w.log.Info("workspace mounted viewport", "viewport_id", id, "kind", spec.Kind, "resolution", spec.Resolution)
	return w.info(e), nil
}

// Unmount removes a viewport. Its widget is closed when it supports it.
func (w *Workspace) Unmount(id string) error {
	if err := requireNonEmpty(id, "id"); err != nil {
		return err
	}
	vid := viewsync.ViewportID(strings.TrimSpace(id))
	w.mu.Lock()
	e, ok := w.viewports[vid]
	if !ok || e == nil {
		w.mu.Unlock()
		return notFound(vid)
	}
	delete(w.viewports, vid)
	n := len(w.viewports)
	w.mu.Unlock()

	e.adapter.Unmount()
	closeWidget(e.widget)
	w.metrics.Viewports.Set(float64(n))
	w.log.Info("workspace unmounted viewport", "viewport_id", vid)
	return nil
}

// List returns every mounted viewport ordered by id.
func (w *Workspace) List() []ViewportInfo {
	w.mu.Lock()
	entries := make([]*entry, 0, len(w.viewports))
	for _, e := range w.viewports {
		if e != nil {
			entries = append(entries, e)
		}
	}
	w.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].adapter.ID() < entries[j].adapter.ID()
	})
	out := make([]ViewportInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, w.info(e))
	}
	return out
}

// Get describes one viewport.
func (w *Workspace) Get(id string) (ViewportInfo, error) {
	e, err := w.lookup(id)
	if err != nil {
		return ViewportInfo{}, err
	}
	return w.info(e), nil
}

// Pan shifts a viewport by bars and publishes the new range.
func (w *Workspace) Pan(id string, bars float64) (viewport.RangeResult, error) {
	e, err := w.lookup(id)
	if err != nil {
		return viewport.RangeResult{}, err
	}
	res, err := e.adapter.Pan(bars)
	return res, codedViewportErr(e.adapter.ID(), err)
}

// Zoom performs one zoom step anchored at pixel x.
func (w *Workspace) Zoom(id string, x float64, direction string) (viewport.RangeResult, error) {
	dir, ok := zoom.ParseDirection(direction)
	if !ok {
		return viewport.RangeResult{}, validation("direction must be \"in\" or \"out\"")
	}
	e, err := w.lookup(id)
	if err != nil {
		return viewport.RangeResult{}, err
	}
	res, err := e.adapter.Zoom(x, dir)
	return res, codedViewportErr(e.adapter.ID(), err)
}

// Wheel feeds a wheel event to a viewport. handled is false for
// horizontal-dominant events, which are left to the widget.
func (w *Workspace) Wheel(id string, x, deltaX, deltaY float64, deltaMode int) (viewport.RangeResult, bool, error) {
	if deltaMode < 0 || deltaMode > 2 {
		return viewport.RangeResult{}, false, validation("delta_mode must be 0, 1 or 2")
	}
	for _, v := range []float64{x, deltaX, deltaY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return viewport.RangeResult{}, false, validation("wheel position and deltas must be finite")
		}
	}
	e, err := w.lookup(id)
	if err != nil {
		return viewport.RangeResult{}, false, err
	}
	res, handled, err := e.adapter.Wheel(x, deltaX, deltaY, deltaMode)
	return res, handled, codedViewportErr(e.adapter.ID(), err)
}

// ScrollTo shows [from, to] on a viewport and publishes it.
func (w *Workspace) ScrollTo(id string, from, to float64) (viewport.RangeResult, error) {
	e, err := w.lookup(id)
	if err != nil {
		return viewport.RangeResult{}, err
	}
	res, err := e.adapter.ScrollTo(viewsync.ViewRange{From: from, To: to})
	return res, codedViewportErr(e.adapter.ID(), err)
}

// Hover moves the crosshair to the bar under pixel x.
func (w *Workspace) Hover(id string, x, price float64) (*viewsync.CrosshairPosition, uint64, error) {
	e, err := w.lookup(id)
	if err != nil {
		return nil, 0, err
	}
	pos, seq, err := e.adapter.Hover(x, price)
	return pos, seq, codedViewportErr(e.adapter.ID(), err)
}

// SetCrosshair places the crosshair at an explicit time and value.
func (w *Workspace) SetCrosshair(id string, t time.Time, value float64) (*viewsync.CrosshairPosition, uint64, error) {
	if t.IsZero() {
		return nil, 0, requireNonEmpty("", "time")
	}
	e, err := w.lookup(id)
	if err != nil {
		return nil, 0, err
	}
	pos, seq, err := e.adapter.SetCrosshair(t, value)
	return pos, seq, codedViewportErr(e.adapter.ID(), err)
}

// Leave clears the crosshair everywhere.
func (w *Workspace) Leave(id string) (uint64, error) {
	e, err := w.lookup(id)
	if err != nil {
		return 0, err
	}
	seq, err := e.adapter.Leave()
	return seq, codedViewportErr(e.adapter.ID(), err)
}

// BeginInteraction gives a viewport the leader token.
func (w *Workspace) BeginInteraction(id string) error {
	e, err := w.lookup(id)
	if err != nil {
		return err
	}
	return codedViewportErr(e.adapter.ID(), e.adapter.BeginInteraction())
}

// EndInteraction releases the leader token. released is false when the
// viewport did not hold it.
func (w *Workspace) EndInteraction(id string) (released bool, err error) {
	e, err := w.lookup(id)
	if err != nil {
		return false, err
	}
	return e.adapter.EndInteraction(), nil
}

// SyncState reports the bus cache, the leader and the registered viewports.
func (w *Workspace) SyncState() SyncState {
	st := SyncState{LastSeq: w.bus.LastSeq(), Viewports: w.bus.Registered()}
	if r, ok := w.bus.LastRange(); ok {
		st.Range = &r
	}
	if c, ok := w.bus.LastCrosshair(); ok {
		st.Crosshair = &c
	}
	if id, ok := w.bus.Leader(); ok {
		st.Leader = id
	}
	if st.Viewports == nil {
		st.Viewports = []viewsync.ViewportID{}
	}
	return st
}

// Close unmounts every viewport. Further mounts fail.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	entries := make([]*entry, 0, len(w.viewports))
	for _, e := range w.viewports {
		if e != nil {
			entries = append(entries, e)
		}
	}
	w.viewports = make(map[viewsync.ViewportID]*entry)
	w.mu.Unlock()

	for _, e := range entries {
		e.adapter.Unmount()
		closeWidget(e.widget)
	}
	w.unobserve()
	w.cancel()
	w.metrics.Viewports.Set(0)
	w.log.Info("workspace closed", "unmounted", len(entries))
	return nil
}

func (w *Workspace) lookup(id string) (*entry, error) {
	if err := requireNonEmpty(id, "id"); err != nil {
		return nil, err
	}
	vid := viewsync.ViewportID(strings.TrimSpace(id))
	w.mu.Lock()
	e := w.viewports[vid]
	w.mu.Unlock()
	if e == nil {
		return nil, notFound(vid)
	}
	return e, nil
}

// release drops id if it still maps to e.
func (w *Workspace) release(id viewsync.ViewportID, e *entry) {
	w.mu.Lock()
	if cur, ok := w.viewports[id]; ok && cur == e {
		delete(w.viewports, id)
	}
	w.mu.Unlock()
}

func (w *Workspace) info(e *entry) ViewportInfo {
	out := ViewportInfo{
		ID:         e.adapter.ID(),
		Kind:       e.spec.Kind,
		ChartID:    e.spec.ChartID,
		Resolution: e.spec.Resolution,
		Leader:     e.adapter.IsLeader(),
		MountedAt:  e.mountedAt,
		Stats:      e.adapter.Stats(),
	}
	if r, off, ok := e.adapter.CurrentRange(); ok {
		out.Range = &r
		out.RightOffset = off
	}
	return out
}

func (w *Workspace) newWidget(ctx context.Context, spec MountSpec) (viewport.Widget, error) {
	switch spec.Kind {
	case KindSim:
		return w.newSimWidget(spec)
	case KindCDP:
		return w.newCDPWidget(ctx, spec)
	default:
		return nil, validation("unknown widget kind %q", spec.Kind)
	}
}

func (w *Workspace) newSimWidget(spec MountSpec) (viewport.Widget, error) {
	interval, err := ResolutionInterval(spec.Resolution)
	if err != nil {
		return nil, validation("%v", err)
	}
	n := spec.Bars
	if n <= 0 {
		n = w.defaults.Bars
	}
	seed := spec.Seed
	if seed == 0 {
		seed = 1
	}
	opts := chartsim.Options{
		Width:       firstPositive(spec.Width, w.defaults.Width),
		Bars:        chartsim.GenerateBars(n, simEpoch, interval, seed),
		Range:       spec.Range,
		RightOffset: spec.RightOffset,
		Series:      viewsync.SeriesID(spec.SeriesRef),
	}
	if opts.RightOffset == 0 {
		opts.RightOffset = w.defaults.RightOffset
	}
	if spec.DeferNotifications {
		opts.Notify = w.frames
	}
	return chartsim.New(opts), nil
}

func (w *Workspace) newCDPWidget(ctx context.Context, spec MountSpec) (viewport.Widget, error) {
	if err := requireNonEmpty(spec.ChartID, "chart_id"); err != nil {
		return nil, err
	}
	if w.cdp == nil {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "cdp viewports are not enabled"}
	}
	charts, err := w.cdp.ListCharts(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, c := range charts {
		if c.ChartID == spec.ChartID {
			found = true
			break
		}
	}
	if !found {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeChartNotFound, Message: fmt.Sprintf("chart %q not found", spec.ChartID)}
	}
	return cdpcontrol.NewChartWidget(w.ctx, w.cdp, spec.ChartID), nil
}

// ResolutionInterval maps a chart resolution to its bar interval. Plain
// numbers are minutes; the suffixes S, D, W and M select seconds, days,
// weeks and 30-day months.
func ResolutionInterval(res string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(res))
	if s == "" {
		return 0, errors.New("resolution is required")
	}
	unit := time.Minute
	switch s[len(s)-1] {
	case 'S':
		unit = time.Second
	case 'D':
		unit = 24 * time.Hour
	case 'W':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	}
	if unit != time.Minute {
		s = s[:len(s)-1]
	}
	n := 1
	if s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid resolution %q", res)
		}
		n = v
	}
	return time.Duration(n) * unit, nil
}

func closeWidget(w viewport.Widget) {
	if c, ok := w.(interface{ Close() }); ok {
		c.Close()
	}
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
