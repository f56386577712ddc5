package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/chartsim"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/zoom"
)

func newTestWorkspace(t *testing.T) (*Workspace, *frame.Manual) {
	t.Helper()
	frames := &frame.Manual{}
	w := New(Config{Frames: frames, Registerer: prometheus.NewRegistry()})
	t.Cleanup(func() { _ = w.Close() })
	return w, frames
}

func mustMount(t *testing.T, w *Workspace, spec MountSpec) ViewportInfo {
	t.Helper()
	info, err := w.Mount(context.Background(), spec)
	if err != nil {
		t.Fatalf("Mount(%s) error = %v", spec.ID, err)
	}
	return info
}

func chartOf(t *testing.T, w *Workspace, id string) *chartsim.Chart {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.viewports[viewsync.ViewportID(id)]
	if e == nil {
		t.Fatalf("viewport %s not mounted", id)
	}
	c, ok := e.widget.(*chartsim.Chart)
	if !ok {
		t.Fatalf("viewport %s widget = %T; want *chartsim.Chart", id, e.widget)
	}
	return c
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error = %v (%T); want *cdpcontrol.CodedError %s", err, err, code)
	}
	if coded.Code != code {
		t.Fatalf("error code = %q; want %q (%v)", coded.Code, code, err)
	}
}

func TestPanPropagatesToOtherViewports(t *testing.T) {
	w, frames := newTestWorkspace(t)
	a := mustMount(t, w, MountSpec{ID: "a"})
	mustMount(t, w, MountSpec{ID: "b"})

	res, err := w.Pan("a", -10)
	if err != nil {
		t.Fatalf("Pan() error = %v", err)
	}
	want := zoom.Pan(*a.Range, -10)
	if res.Range != want {
		t.Fatalf("Pan() range = %v; want %v", res.Range, want)
	}
	frames.Flush()

	if got := chartOf(t, w, "b").State().Range; got != want {
		t.Fatalf("b range = %v; want %v", got, want)
	}
	st := w.SyncState()
	if st.LastSeq != res.Seq || st.Range == nil || st.Range.SourceID != "a" {
		t.Fatalf("SyncState() = %+v; want range from a at seq %d", st, res.Seq)
	}
	m := w.Metrics()
	if got := testutil.ToFloat64(m.Messages.WithLabelValues("range_changed")); got != 1 {
		t.Fatalf("messages_total{range_changed} = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("range_changed", "applied")); got != 1 {
		t.Fatalf("outcomes_total{applied} = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.Viewports); got != 2 {
		t.Fatalf("viewports = %v; want 2", got)
	}
	if st, _ := w.Get("a"); st.Stats.Published != 1 {
		t.Fatalf("a published = %d; want 1", st.Stats.Published)
	}
}

func TestDeferredChartsDoNotEcho(t *testing.T) {
	w, frames := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a", DeferNotifications: true})
	mustMount(t, w, MountSpec{ID: "b", DeferNotifications: true})

	res, err := w.Zoom("a", 400, "in")
	if err != nil {
		t.Fatalf("Zoom() error = %v", err)
	}
	for range 3 {
		frames.Flush()
	}
	if got := w.SyncState().LastSeq; got != res.Seq {
		t.Fatalf("LastSeq = %d; want %d (no echo publishes)", got, res.Seq)
	}
	if got := chartOf(t, w, "b").State().Range; got != res.Range {
		t.Fatalf("b range = %v; want %v", got, res.Range)
	}
}

func TestLateMountCatchesUp(t *testing.T) {
	w, _ := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a"})
	res, err := w.ScrollTo("a", 100, 180)
	if err != nil {
		t.Fatalf("ScrollTo() error = %v", err)
	}
	c := mustMount(t, w, MountSpec{ID: "c"})
	if c.Range == nil || *c.Range != res.Range {
		t.Fatalf("late viewport range = %v; want %v", c.Range, res.Range)
	}
	if got := w.SyncState().LastSeq; got != res.Seq {
		t.Fatalf("LastSeq = %d; want %d (mount must not publish)", got, res.Seq)
	}
}

func TestHoverAndLeave(t *testing.T) {
	w, _ := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a"})
	mustMount(t, w, MountSpec{ID: "b"})

	ca := chartOf(t, w, "a")
	logical, _ := ca.CoordinateToLogical(400)
	bar, _ := ca.BarAt(logical)

	pos, _, err := w.Hover("a", 400, 101.5)
	if err != nil {
		t.Fatalf("Hover() error = %v", err)
	}
	if pos == nil || !pos.Time.Equal(bar.Time) {
		t.Fatalf("Hover() = %+v; want time %v", pos, bar.Time)
	}
	cross := chartOf(t, w, "b").State().Crosshair
	if cross == nil || !cross.Time.Equal(bar.Time) || cross.Value != 101.5 {
		t.Fatalf("b crosshair = %+v; want 101.5 at %v", cross, bar.Time)
	}

	if _, err := w.Leave("a"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if cross := chartOf(t, w, "b").State().Crosshair; cross != nil {
		t.Fatalf("b crosshair after Leave = %+v; want nil", cross)
	}

	at := simEpoch.Add(42 * time.Minute)
	if _, _, err := w.SetCrosshair("b", at, 99); err != nil {
		t.Fatalf("SetCrosshair() error = %v", err)
	}
	if cross := ca.State().Crosshair; cross == nil || !cross.Time.Equal(at) {
		t.Fatalf("a crosshair = %+v; want %v", cross, at)
	}
	_, _, err = w.SetCrosshair("b", time.Time{}, 1)
	wantCode(t, err, cdpcontrol.CodeValidation)
}

func TestLeaderLifecycle(t *testing.T) {
	w, _ := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a"})
	if err := w.BeginInteraction("a"); err != nil {
		t.Fatalf("BeginInteraction() error = %v", err)
	}
	if got := w.SyncState().Leader; got != "a" {
		t.Fatalf("Leader = %q; want a", got)
	}
	if info, _ := w.Get("a"); !info.Leader {
		t.Fatal("Get(a).Leader = false; want true")
	}
	if released, err := w.EndInteraction("a"); err != nil || !released {
		t.Fatalf("EndInteraction() = %v, %v; want true, nil", released, err)
	}
	if released, _ := w.EndInteraction("a"); released {
		t.Fatal("second EndInteraction() = true; want false")
	}
}

func TestErrorsAreCoded(t *testing.T) {
	w, _ := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a"})

	_, err := w.Mount(context.Background(), MountSpec{ID: "a"})
	wantCode(t, err, cdpcontrol.CodeViewportExists)
	_, err = w.Mount(context.Background(), MountSpec{Kind: "canvas"})
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.Mount(context.Background(), MountSpec{Kind: KindCDP})
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.Mount(context.Background(), MountSpec{Kind: KindCDP, ChartID: "x"})
	wantCode(t, err, cdpcontrol.CodeCDPUnavailable)
	_, err = w.Mount(context.Background(), MountSpec{Resolution: "abc"})
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.Mount(context.Background(), MountSpec{Range: &viewsync.ViewRange{From: 5, To: 5}})
	wantCode(t, err, cdpcontrol.CodeValidation)

	_, err = w.Pan("missing", 1)
	wantCode(t, err, cdpcontrol.CodeViewportNotFound)
	_, err = w.Pan(" ", 1)
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.Zoom("a", 0, "sideways")
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.ScrollTo("a", 10, 5)
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, _, err = w.Wheel("a", 0, 0, 10, 7)
	wantCode(t, err, cdpcontrol.CodeValidation)

	chartOf(t, w, "a").FailWith(errors.New("boom"))
	_, err = w.Pan("a", 1)
	wantCode(t, err, cdpcontrol.CodeWidgetUnavailable)

	if len(w.List()) != 1 {
		t.Fatalf("List() = %v; failed mounts must not leave entries", w.List())
	}
}

func TestWheelHorizontalIsIgnored(t *testing.T) {
	w, _ := newTestWorkspace(t)
	mustMount(t, w, MountSpec{ID: "a"})
	if _, handled, err := w.Wheel("a", 400, 50, 5, 0); err != nil || handled {
		t.Fatalf("Wheel(horizontal) = %v, %v; want false, nil", handled, err)
	}
	if got := w.SyncState().LastSeq; got != 0 {
		t.Fatalf("LastSeq = %d; want 0", got)
	}
	res, handled, err := w.Wheel("a", 400, 0, -100, 0)
	if err != nil || !handled {
		t.Fatalf("Wheel(vertical) = %v, %v; want true, nil", handled, err)
	}
	if res.Range.Bars() >= 99 {
		t.Fatalf("Wheel(zoom in) range = %v; want narrower than 99 bars", res.Range)
	}
	if got := w.SyncState().Leader; got != "a" {
		t.Fatalf("Leader after wheel = %q; want a", got)
	}
}

func TestWheelWithHugeDeltaKeepsRangesFinite(t *testing.T) {
	w, frames := newTestWorkspace(t)
	a := mustMount(t, w, MountSpec{ID: "a"})
	mustMount(t, w, MountSpec{ID: "b"})

	x, ok := chartOf(t, w, "a").LogicalToCoordinate(a.Range.From)
	if !ok {
		t.Fatal("left edge has no pixel coordinate")
	}
	res, handled, err := w.Wheel("a", x, 0, 1e6, 0)
	if err != nil || !handled {
		t.Fatalf("Wheel(1e6) = %v, %v; want true, nil", handled, err)
	}
	if !res.Range.Valid() {
		t.Fatalf("Wheel(1e6) range = %v; want finite", res.Range)
	}
	frames.Flush()
	if got := chartOf(t, w, "b").State().Range; got != res.Range {
		t.Fatalf("b range = %v; want %v", got, res.Range)
	}
	if _, err := json.Marshal(w.SyncState()); err != nil {
		t.Fatalf("json.Marshal(SyncState()) error = %v", err)
	}

	_, _, err = w.Wheel("a", x, 0, math.NaN(), 0)
	wantCode(t, err, cdpcontrol.CodeValidation)
	_, err = w.ScrollTo("a", -1e308, 1e308)
	wantCode(t, err, cdpcontrol.CodeValidation)
	if got := w.SyncState().LastSeq; got != res.Seq {
		t.Fatalf("LastSeq = %d; want %d after rejected calls", got, res.Seq)
	}
}

func TestUnmountAndClose(t *testing.T) {
	w, _ := newTestWorkspace(t)
	info := mustMount(t, w, MountSpec{})
	if info.ID == "" {
		t.Fatal("Mount() generated empty id")
	}
	mustMount(t, w, MountSpec{ID: "b"})

	if err := w.Unmount(string(info.ID)); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	wantCode(t, w.Unmount(string(info.ID)), cdpcontrol.CodeViewportNotFound)
	_, err := w.Get(string(info.ID))
	wantCode(t, err, cdpcontrol.CodeViewportNotFound)
	if got := w.SyncState().Viewports; len(got) != 1 || got[0] != "b" {
		t.Fatalf("registered = %v; want [b]", got)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := w.List(); len(got) != 0 {
		t.Fatalf("List() after Close = %v", got)
	}
	_, err = w.Mount(context.Background(), MountSpec{ID: "c"})
	wantCode(t, err, cdpcontrol.CodeWidgetUnavailable)
	if got := testutil.ToFloat64(w.Metrics().Viewports); got != 0 {
		t.Fatalf("viewports gauge = %v; want 0", got)
	}
}

func TestResolutionInterval(t *testing.T) {
	tests := map[string]time.Duration{
		"1":   time.Minute,
		"15":  15 * time.Minute,
		"60":  time.Hour,
		"D":   24 * time.Hour,
		"1D":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"30S": 30 * time.Second,
		"M":   30 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := ResolutionInterval(in)
		if err != nil || got != want {
			t.Fatalf("ResolutionInterval(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "x", "0", "-5", "1.5"} {
		if _, err := ResolutionInterval(in); err == nil {
			t.Fatalf("ResolutionInterval(%q) error = nil", in)
		}
	}
}

func TestLoadAndMountLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	body := `viewports:
  - id: left
    resolution: "5"
    range: {from: 10, to: 60}
  - id: right
    resolution: "15"
    magnet: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLayout(path)
	if err != nil {
		t.Fatalf("LoadLayout() error = %v", err)
	}
	if len(l.Viewports) != 2 || !l.Viewports[1].Magnet || l.Viewports[0].Range.To != 60 {
		t.Fatalf("LoadLayout() = %+v", l)
	}

	w, _ := newTestWorkspace(t)
	infos, err := w.MountLayout(context.Background(), l)
	if err != nil {
		t.Fatalf("MountLayout() error = %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "left" || infos[1].Resolution != "15" {
		t.Fatalf("MountLayout() = %+v", infos)
	}

	bad := map[string]string{
		"dup.yaml":   "viewports:\n  - id: a\n  - id: a\n",
		"cdp.yaml":   "viewports:\n  - id: a\n    kind: cdp\n",
		"kind.yaml":  "viewports:\n  - id: a\n    kind: svg\n",
		"range.yaml": "viewports:\n  - id: a\n    range: {from: 9, to: 1}\n",
	}
	for name, content := range bad {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadLayout(p); err == nil {
			t.Fatalf("LoadLayout(%s) error = nil", name)
		}
	}
}
